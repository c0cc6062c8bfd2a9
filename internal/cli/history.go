package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/sitefactory/internal/daemon"
	"github.com/lucasnoah/sitefactory/internal/report"
	"github.com/lucasnoah/sitefactory/internal/session"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		sessions, err := e.sessions.List(session.Status(status))
		if err != nil {
			return err
		}
		if limit > 0 && len(sessions) > limit {
			sessions = sessions[:limit]
		}

		if isJSON(cmd) {
			return writeJSON(cmd, sessions)
		}
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tSTATUS\tWEBSITES\tAVG\tLEARNINGS\tCREATED")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t%.2f\t%d\t%s\n",
				s.ID, s.Status, s.CurrentIndex, s.TargetCount, s.AverageScore(), len(s.Learnings),
				s.CreatedAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	},
}

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Analyze the average-score trend over recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		last, _ := cmd.Flags().GetInt("last")

		trend, err := report.AnalyzeTrends(e.sessions.SessionsDir(), last)
		if err != nil {
			return err
		}
		if isJSON(cmd) {
			return writeJSON(cmd, trend)
		}

		out := cmd.OutOrStdout()
		if len(trend.Points) == 0 {
			fmt.Fprintln(out, "No session reports found.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tSTARTED\tAVG")
		for _, p := range trend.Points {
			fmt.Fprintf(w, "%s\t%s\t%.2f\n", p.SessionID, p.StartedAt.Local().Format(time.DateTime), p.AverageScore)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nTrend: %s (mean delta %+.2f)\n", trend.Direction, trend.MeanDelta)
		if trend.Direction != report.InsufficientData {
			fmt.Fprintf(out, "Predicted next average: %.2f\n", trend.Prediction)
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old session directories, keeping the newest",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		keep, _ := cmd.Flags().GetInt("keep")
		if keep < 1 {
			return fmt.Errorf("--keep must be at least 1")
		}

		// Never delete the daemon's session or a checkpointed one that can still resume.
		protected := map[string]bool{}
		if st, err := daemon.LoadState(daemon.New(e.cfg, e.daemonDir(), nil).StatePath()); err == nil && st.CurrentSessionID != "" {
			protected[st.CurrentSessionID] = true
		}
		if cp, err := e.sessions.LoadCheckpoint(); err == nil && cp != nil && cp.Status != session.StatusCompleted && cp.Status != session.StatusFailed {
			protected[cp.ID] = true
		}

		removed, err := report.Cleanup(e.sessions.SessionsDir(), keep, func(id string) bool { return protected[id] })
		if err != nil {
			return err
		}
		if isJSON(cmd) {
			return writeJSON(cmd, removed)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d session(s).\n", len(removed))
		for _, id := range removed {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", id)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().String("format", "text", "Output format: text or json")
	historyCmd.Flags().String("status", "", "filter by status (pending, running, completed, failed, paused)")
	historyCmd.Flags().Int("limit", 20, "maximum sessions to list (0 = all)")
	trendsCmd.Flags().String("format", "text", "Output format: text or json")
	trendsCmd.Flags().Int("last", 10, "number of recent sessions to analyze")
	cleanupCmd.Flags().String("format", "text", "Output format: text or json")
	cleanupCmd.Flags().Int("keep", 20, "number of newest sessions to keep")
}
