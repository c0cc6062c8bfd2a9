package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/sitefactory/internal/daemon"
	"github.com/lucasnoah/sitefactory/internal/log"
)

const stopGrace = 30 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the test daemon",
	Long: `Start the daemon that runs a test session immediately and then every
session_interval. By default the daemon detaches and logs to
~/.sitefactory/daemon/daemon.log; --foreground keeps it attached.

Exits with an error if a daemon is already running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}

		foreground, _ := cmd.Flags().GetBool("foreground")
		if !foreground {
			child, err := daemon.Background(e.daemonDir())
			if err != nil {
				return err
			}
			if child != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon started (pid %d). Logs: %s\n", child.Pid, daemon.New(e.cfg, e.daemonDir(), nil).LogPath())
				return nil
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		orch, cleanup, err := e.newOrchestrator(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		return daemon.New(e.cfg, e.daemonDir(), orch).Serve(ctx)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		grace, _ := cmd.Flags().GetDuration("grace")
		if err := daemon.StopDaemon(e.daemonDir(), grace); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped.")
		return nil
	},
}

// statusView is the status command's JSON shape.
type statusView struct {
	Running    bool          `json:"running"`
	PID        int           `json:"pid,omitempty"`
	Daemon     *daemon.State `json:"daemon"`
	Checkpoint interface{}   `json:"checkpoint,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon state and the latest session checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}

		dctx := daemon.New(e.cfg, e.daemonDir(), nil)
		pid, alive, err := daemon.Probe(dctx.PIDPath())
		if err != nil {
			return err
		}
		st, err := daemon.LoadState(dctx.StatePath())
		if err != nil {
			return err
		}
		cp, err := e.sessions.LoadCheckpoint()
		if err != nil {
			log.Warn("read checkpoint: %v", err)
		}

		if isJSON(cmd) {
			v := statusView{Running: alive, Daemon: st}
			if alive {
				v.PID = pid
			}
			if cp != nil {
				v.Checkpoint = cp
			}
			return writeJSON(cmd, v)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		if alive {
			fmt.Fprintf(w, "Daemon:\trunning (pid %d)\n", pid)
		} else {
			fmt.Fprintln(w, "Daemon:\tnot running")
		}
		fmt.Fprintf(w, "State:\t%s\n", st.Status)
		if st.CurrentSessionID != "" {
			fmt.Fprintf(w, "Session:\t%s\n", st.CurrentSessionID)
		}
		fmt.Fprintf(w, "Consecutive errors:\t%d\n", st.ConsecutiveErrors)
		if st.LastError != "" {
			fmt.Fprintf(w, "Last error:\t%s\n", truncate(st.LastError, 80))
		}
		if !st.LastActivity.IsZero() {
			fmt.Fprintf(w, "Last activity:\t%s\n", st.LastActivity.Local().Format(time.DateTime))
		}
		if st.MemoryMB > 0 {
			fmt.Fprintf(w, "Memory:\t%d MB\n", st.MemoryMB)
		}
		if st.ShutdownReason != "" {
			fmt.Fprintf(w, "Shutdown reason:\t%s\n", st.ShutdownReason)
		}
		fmt.Fprintf(w, "Sessions run:\t%d\n", len(st.History))
		if cp != nil {
			fmt.Fprintf(w, "Checkpoint:\t%s %s %d/%d avg %.2f\n", cp.ID, cp.Status, cp.CurrentIndex, cp.TargetCount, cp.AverageScore())
		}
		return w.Flush()
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the daemon log",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		follow, _ := cmd.Flags().GetBool("follow")
		lines, _ := cmd.Flags().GetInt("lines")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		path := daemon.New(e.cfg, e.daemonDir(), nil).LogPath()
		err = daemon.FollowLog(ctx, path, lines, follow, cmd.OutOrStdout())
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no daemon log at %s", path)
		}
		return err
	},
}

func init() {
	startCmd.Flags().Bool("foreground", false, "run in the foreground instead of detaching")
	stopCmd.Flags().Duration("grace", stopGrace, "time to wait after SIGTERM before SIGKILL")
	statusCmd.Flags().String("format", "text", "Output format: text or json")
	logsCmd.Flags().BoolP("follow", "f", false, "keep streaming new log lines")
	logsCmd.Flags().IntP("lines", "n", 20, "number of recent lines to show")
}
