package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/sitefactory/internal/daemon"
	"github.com/lucasnoah/sitefactory/internal/log"
	"github.com/lucasnoah/sitefactory/internal/report"
)

var runCmd = &cobra.Command{
	Use:   "run <websites>",
	Short: "Run one test session in the foreground",
	Long: `Run a single session of <websites> attempts and print its report.

The first SIGINT asks the session to stop after the website in flight; the
partial report is still written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("websites must be a positive integer, got %q", args[0])
		}

		e, err := newEnv()
		if err != nil {
			return err
		}
		// The daemon owns the checkpoint and learnings file while it is up.
		pid, alive, err := daemon.Probe(filepath.Join(e.daemonDir(), daemon.PIDFile))
		if err != nil {
			return err
		}
		if alive && pid != os.Getpid() {
			return fmt.Errorf("%w (pid %d); stop it before running a foreground session", daemon.ErrAlreadyRunning, pid)
		}
		cfg := *e.cfg
		cfg.Session.WebsiteCount = n
		if seed, _ := cmd.Flags().GetInt64("seed"); seed != 0 {
			cfg.Session.Seed = seed
		}

		orch, cleanup, err := e.newOrchestrator(context.Background())
		if err != nil {
			return err
		}
		defer cleanup()

		sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-sigCtx.Done():
				log.Warn("stop requested; finishing the current website")
				orch.Stop()
			case <-done:
			}
		}()

		log.Info("running %d websites against %s", n, cfg.Session.BaseURL)
		rep, err := orch.RunSession(context.Background(), &cfg)
		if rep != nil {
			if isJSON(cmd) {
				if jerr := writeJSON(cmd, rep); jerr != nil {
					return jerr
				}
			} else {
				printReport(cmd.OutOrStdout(), rep)
			}
		}
		return err
	},
}

func printReport(out io.Writer, rep *report.SessionReport) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Session:\t%s (%s)\n", rep.SessionID, rep.Status)
	fmt.Fprintf(w, "Websites:\t%d/%d succeeded\n", rep.Succeeded, rep.TotalWebsites)
	fmt.Fprintf(w, "Scores:\tavg %.2f  best %.2f  worst %.2f\n", rep.AverageScore, rep.BestScore, rep.WorstScore)
	fmt.Fprintf(w, "Commands:\t%d/%d (%.1f%%)\n", rep.CommandsSucceeded, rep.CommandsTotal, rep.CommandSuccessRate*100)
	fmt.Fprintf(w, "Learnings:\t%d new\n", rep.LearningsGenerated)
	if rep.ImprovementFromPrevious != nil {
		fmt.Fprintf(w, "Change:\t%+.1f%% vs previous session\n", *rep.ImprovementFromPrevious)
	}
	w.Flush()

	if len(rep.Websites) > 0 {
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tWEBSITE\tINDUSTRY\tTEMPLATE\tSCORE\tVERDICT\tCMDS\tFAIL")
		for _, s := range rep.Websites {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%s\t%d\t%d\n",
				s.Index+1, s.WebsiteID, s.Industry, s.Template, s.Score.OverallScore, s.Score.Verdict, s.CommandsTotal, s.Failures)
		}
		w.Flush()
	}

	if len(rep.Recommendations) > 0 {
		fmt.Fprintln(out, "\nRecommendations:")
		for _, r := range rep.Recommendations {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
}

func init() {
	runCmd.Flags().String("format", "text", "Output format: text or json")
	runCmd.Flags().Int64("seed", 0, "random seed for reproducible sessions (0 = from config)")
}
