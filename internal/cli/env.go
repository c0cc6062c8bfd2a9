package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/sitefactory/internal/automation"
	"github.com/lucasnoah/sitefactory/internal/config"
	"github.com/lucasnoah/sitefactory/internal/daemon"
	"github.com/lucasnoah/sitefactory/internal/db"
	"github.com/lucasnoah/sitefactory/internal/graph"
	"github.com/lucasnoah/sitefactory/internal/learning"
	"github.com/lucasnoah/sitefactory/internal/log"
	"github.com/lucasnoah/sitefactory/internal/orchestrator"
	"github.com/lucasnoah/sitefactory/internal/session"
)

const (
	learningsFile = "learnings.json"
	templatesDir  = "templates"
	graphDir      = "graph"
	screensDir    = "screenshots"
)

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault()
}

// env is the state every command works against.
type env struct {
	cfg       *config.Config
	home      string
	sessions  *session.Store
	learnings *learning.Store
}

func newEnv() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %s", errs[0])
	}
	home, err := cfg.Home()
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:       cfg,
		home:      home,
		sessions:  session.NewStore(home),
		learnings: learning.NewStore(cfg.Session.QualityThreshold, cfg.Learning.ActivationThreshold),
	}, nil
}

func (e *env) learningsPath() string { return filepath.Join(e.home, learningsFile) }

func (e *env) daemonDir() string { return daemon.Dir(e.home) }

// loadLearnings imports the persisted learnings into the env store.
func (e *env) loadLearnings() error {
	_, err := e.learnings.Import(e.learningsPath())
	return err
}

func openDB(home string) (*db.DB, error) {
	d, err := db.Open(db.PathIn(home))
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// newTransport selects the automation backend named in config.
func (e *env) newTransport() (automation.Transport, func(), error) {
	switch e.cfg.Automation.Backend {
	case "noop":
		return automation.NewNoopTransport(), func() {}, nil
	case "chromedp":
		ct, err := automation.NewChromeTransport(automation.ChromeOptions{
			Headless:      e.cfg.Session.HeadlessEnabled(),
			SelectorAttr:  e.cfg.Automation.SelectorAttr,
			ScreenshotDir: filepath.Join(e.home, screensDir),
		})
		if err != nil {
			return nil, nil, err
		}
		return ct, ct.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown automation backend %q", e.cfg.Automation.Backend)
	}
}

// newSink writes staged graph records to files under home and, when a DSN
// is configured, to Postgres as well.
func (e *env) newSink(ctx context.Context) graph.Sink {
	fileSink := graph.NewFileSink(filepath.Join(e.home, graphDir))
	if e.cfg.Graph.PostgresDSN == "" {
		return fileSink
	}
	pg, err := graph.OpenPostgres(ctx, e.cfg.Graph.PostgresDSN)
	if err != nil {
		log.Warn("graph database unavailable, using files only: %v", err)
		return fileSink
	}
	return graph.Multi{fileSink, pg}
}

// newOrchestrator wires an orchestrator over the env. The returned cleanup
// closes the browser, sink and database.
func (e *env) newOrchestrator(ctx context.Context) (*orchestrator.Orchestrator, func(), error) {
	transport, closeTransport, err := e.newTransport()
	if err != nil {
		return nil, nil, err
	}

	// The event log is best-effort; sessions run without it.
	d, err := openDB(e.home)
	if err != nil {
		log.Warn("event database unavailable: %v", err)
		d = nil
	}
	sink := e.newSink(ctx)

	orch := orchestrator.New(orchestrator.Deps{
		Sessions:      e.sessions,
		Learnings:     e.learnings,
		Transport:     transport,
		Builder:       orchestrator.StaticBuilder{BaseURL: e.cfg.Session.BaseURL},
		DB:            d,
		Sink:          sink,
		LearningsPath: e.learningsPath(),
		TemplatesDir:  filepath.Join(e.home, templatesDir),
	})
	orch.SetProgress(log.Writer())
	e.learnings.SetProgress(log.Writer())

	cleanup := func() {
		closeTransport()
		if err := sink.Close(); err != nil {
			log.Warn("close graph sink: %v", err)
		}
		if d != nil {
			d.Close()
		}
	}
	return orch, cleanup, nil
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func isJSON(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("format")
	return format == "json"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
