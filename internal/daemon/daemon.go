// Package daemon wraps the session orchestrator in a long-running process
// with single-instance enforcement, health ticks, a consecutive-failure
// circuit breaker and a bounded session history.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/lucasnoah/sitefactory/internal/config"
	"github.com/lucasnoah/sitefactory/internal/fileutil"
	"github.com/lucasnoah/sitefactory/internal/log"
	"github.com/lucasnoah/sitefactory/internal/report"
)

var (
	// ErrAlreadyRunning is returned when a live daemon holds the PID file.
	ErrAlreadyRunning = errors.New("daemon already running")
	// ErrNotRunning is returned when stopping a daemon that is not running.
	ErrNotRunning = errors.New("daemon is not running")
	// ErrCircuitOpen is returned once consecutive session failures reach the
	// configured maximum. The daemon shuts itself down.
	ErrCircuitOpen = errors.New("circuit open: too many consecutive session failures")
)

// Files under the daemon directory.
const (
	PIDFile   = "daemon.pid"
	StateFile = "state.json"
	LogFile   = "daemon.log"
)

// Dir returns the daemon directory under the state home.
func Dir(home string) string {
	return filepath.Join(home, "daemon")
}

// Runner runs sessions. *orchestrator.Orchestrator satisfies it.
type Runner interface {
	RunSession(ctx context.Context, cfg *config.Config) (*report.SessionReport, error)
	Stop()
	CurrentSessionID() string
}

// Context is the daemon's explicit state: configuration, paths, the session
// runner and the persisted State. Only its methods mutate the State.
type Context struct {
	cfg    *config.Config
	dir    string
	runner Runner

	now      func() time.Time
	readHeap func() uint64
	gc       func()

	mu    sync.Mutex
	state State
}

// New creates a daemon Context rooted at dir, seeded from any persisted
// state so history survives restarts.
func New(cfg *config.Config, dir string, runner Runner) *Context {
	c := &Context{
		cfg:      cfg,
		dir:      dir,
		runner:   runner,
		now:      time.Now,
		readHeap: heapAlloc,
		gc:       runtime.GC,
		state:    State{Status: StatusIdle},
	}
	if prev, err := LoadState(c.StatePath()); err == nil {
		c.state.History = prev.History
		c.trimHistory()
	}
	return c
}

func heapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// PIDPath returns the PID file path.
func (c *Context) PIDPath() string { return filepath.Join(c.dir, PIDFile) }

// StatePath returns the state file path.
func (c *Context) StatePath() string { return filepath.Join(c.dir, StateFile) }

// LogPath returns the daemon log path.
func (c *Context) LogPath() string { return filepath.Join(c.dir, LogFile) }

// State returns a copy of the current state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.History = append([]HistoryEntry(nil), c.state.History...)
	return s
}

// Save persists the current state.
func (c *Context) Save() error {
	s := c.State()
	if err := fileutil.WriteJSON(c.StatePath(), s); err != nil {
		return fmt.Errorf("save daemon state: %w", err)
	}
	return nil
}

func (c *Context) save() {
	if err := c.Save(); err != nil {
		log.Warn("%v", err)
	}
}

func (c *Context) historyLimit() int {
	limit := c.cfg.Daemon.HistoryLimit
	if limit <= 0 || limit > config.MaxHistoryLimit {
		limit = config.MaxHistoryLimit
	}
	return limit
}

func (c *Context) trimHistory() {
	if over := len(c.state.History) - c.historyLimit(); over > 0 {
		c.state.History = c.state.History[over:]
	}
}

// RunOnce runs one session of count websites (0 uses the configured
// count) and records the outcome. A successful session resets the failure
// streak; once the streak reaches max_consecutive_errors the circuit opens,
// the PID file is removed and ErrCircuitOpen is returned.
func (c *Context) RunOnce(ctx context.Context, count int) (*report.SessionReport, error) {
	cfg := *c.cfg
	if count > 0 {
		cfg.Session.WebsiteCount = count
	}

	started := c.now().UTC()
	c.mu.Lock()
	c.state.Status = StatusRunning
	c.state.LastActivity = started
	c.mu.Unlock()
	c.save()

	rep, err := c.runner.RunSession(ctx, &cfg)

	entry := HistoryEntry{StartedAt: started, CompletedAt: c.now().UTC()}
	if rep != nil {
		entry.SessionID = rep.SessionID
		entry.Status = rep.Status
		entry.Websites = rep.TotalWebsites
		entry.AverageScore = rep.AverageScore
	}

	c.mu.Lock()
	c.state.CurrentSessionID = ""
	c.state.LastActivity = entry.CompletedAt
	if err != nil {
		entry.Error = err.Error()
		if entry.Status == "" {
			entry.Status = "failed"
		}
		c.state.Status = StatusError
		c.state.LastError = err.Error()
		c.state.ConsecutiveErrors++
	} else {
		c.state.Status = StatusIdle
		c.state.ConsecutiveErrors = 0
	}
	c.state.pushHistory(entry, c.historyLimit())
	streak := c.state.ConsecutiveErrors
	open := err != nil && streak >= c.cfg.Daemon.MaxConsecutiveErrors
	if open {
		c.state.ShutdownReason = ReasonCircuitOpen
	}
	c.mu.Unlock()
	c.save()

	if err == nil {
		log.Info("session %s finished: %d websites, average %.2f", entry.SessionID, entry.Websites, entry.AverageScore)
		return rep, nil
	}
	log.Error("session failed (%d consecutive): %v", streak, err)
	if open {
		if rerr := ReleasePID(c.PIDPath()); rerr != nil {
			log.Warn("%v", rerr)
		}
		return rep, fmt.Errorf("%w (%d): %v", ErrCircuitOpen, streak, err)
	}
	return rep, err
}

// Health samples memory, records activity and requests garbage collection
// when the heap exceeds the configured ceiling.
func (c *Context) Health() {
	heap := c.readHeap()
	mb := heap / (1 << 20)

	c.mu.Lock()
	c.state.MemoryMB = mb
	c.state.LastActivity = c.now().UTC()
	if c.state.Status == StatusRunning {
		c.state.CurrentSessionID = c.runner.CurrentSessionID()
	}
	c.mu.Unlock()

	if ceiling := c.cfg.Daemon.HeapCeilingMB; ceiling > 0 && mb > uint64(ceiling) {
		log.Warn("heap %d MB above ceiling %d MB; collecting", mb, ceiling)
		c.gc()
	}
	c.save()
}

// Serve runs a session immediately and then every session_interval, with a
// health tick every health_interval, until ctx is cancelled or the circuit
// opens. Cancellation asks the in-flight session to stop after its current
// website and waits for it.
func (c *Context) Serve(ctx context.Context) error {
	healthEvery := c.cfg.Daemon.HealthIntervalDuration()
	sessionEvery := c.cfg.Daemon.SessionIntervalDuration()
	if healthEvery <= 0 || sessionEvery <= 0 {
		return fmt.Errorf("daemon intervals must be positive (health %s, session %s)", healthEvery, sessionEvery)
	}
	if err := AcquirePID(c.PIDPath()); err != nil {
		return err
	}
	defer func() {
		if err := ReleasePID(c.PIDPath()); err != nil {
			log.Warn("%v", err)
		}
	}()

	c.mu.Lock()
	c.state.Status = StatusIdle
	c.state.StartedAt = c.now().UTC()
	c.state.PID = os.Getpid()
	c.state.ShutdownReason = ""
	c.mu.Unlock()
	c.save()
	log.Info("daemon started (pid %d), session every %s", os.Getpid(), sessionEvery)

	health := time.NewTicker(healthEvery)
	defer health.Stop()
	sessions := time.NewTicker(sessionEvery)
	defer sessions.Stop()

	done := make(chan error, 1)
	busy := false
	start := func() {
		busy = true
		go func() {
			_, err := c.RunOnce(context.WithoutCancel(ctx), 0)
			done <- err
		}()
	}
	start()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown requested")
			if busy {
				c.runner.Stop()
				<-done
			}
			c.mu.Lock()
			c.state.ShutdownReason = ReasonSignal
			c.state.Status = StatusIdle
			c.mu.Unlock()
			c.save()
			return nil

		case <-health.C:
			c.Health()

		case <-sessions.C:
			if busy || ctx.Err() != nil {
				continue
			}
			start()

		case err := <-done:
			busy = false
			if errors.Is(err, ErrCircuitOpen) {
				log.Error("%v; shutting down", err)
				return err
			}
		}
	}
}
