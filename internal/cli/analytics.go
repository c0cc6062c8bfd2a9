package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/sitefactory/internal/analytics"
	"github.com/lucasnoah/sitefactory/internal/db"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Query execution and scoring analytics from the event log",
}

// withDB opens the event database for an analytics command.
func withDB(fn func(cmd *cobra.Command, d *db.DB, since string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		d, err := openDB(e.home)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer d.Close()
		since, _ := cmd.Flags().GetString("since")
		return fn(cmd, d, since)
	}
}

var analyticsFailuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Failure rates and durations per command action",
	RunE: withDB(func(cmd *cobra.Command, d *db.DB, since string) error {
		rows, err := analytics.QueryActionFailureRates(d, since)
		if err != nil {
			return err
		}
		if isJSON(cmd) {
			return writeJSON(cmd, rows)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ACTION\tATTEMPTS\tFAILED\tSKIPPED\tFAIL%\tAVG MS\tP95 MS")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f\t%.0f\t%.0f\n", r.Action, r.Attempts, r.Failed, r.Skipped, r.FailRate, r.AvgMs, r.P95Ms)
		}
		return w.Flush()
	}),
}

var analyticsIndustriesCmd = &cobra.Command{
	Use:   "industries",
	Short: "Score statistics per industry and template",
	RunE: withDB(func(cmd *cobra.Command, d *db.DB, since string) error {
		rows, err := analytics.QueryIndustryScores(d, since)
		if err != nil {
			return err
		}
		if isJSON(cmd) {
			return writeJSON(cmd, rows)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "INDUSTRY\tTEMPLATE\tATTEMPTS\tAVG\tP50\tSUCCESS%")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%.2f\t%.1f\n", r.Industry, r.Template, r.Attempts, r.AvgScore, r.P50Score, r.SuccessRate)
		}
		return w.Flush()
	}),
}

var analyticsVerdictsCmd = &cobra.Command{
	Use:   "verdicts",
	Short: "Distribution of quality verdicts",
	RunE: withDB(func(cmd *cobra.Command, d *db.DB, since string) error {
		rows, err := analytics.QueryVerdictDistribution(d, since)
		if err != nil {
			return err
		}
		if isJSON(cmd) {
			return writeJSON(cmd, rows)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERDICT\tCOUNT\tPCT")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%.1f\n", r.Verdict, r.Count, r.Pct)
		}
		return w.Flush()
	}),
}

var analyticsStepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "Failure counts per step and error type",
	RunE: withDB(func(cmd *cobra.Command, d *db.DB, since string) error {
		rows, err := analytics.QueryStepFailures(d, since)
		if err != nil {
			return err
		}
		if isJSON(cmd) {
			return writeJSON(cmd, rows)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STEP\tERROR\tTOTAL\tRESOLVED%")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%d\t%.1f\n", r.Step, r.ErrorType, r.Total, r.ResolvedRate)
		}
		return w.Flush()
	}),
}

func init() {
	for _, c := range []*cobra.Command{analyticsFailuresCmd, analyticsIndustriesCmd, analyticsVerdictsCmd, analyticsStepsCmd} {
		c.Flags().String("format", "text", "Output format: text or json")
		c.Flags().String("since", "", "only include rows at or after this timestamp (YYYY-MM-DD HH:MM:SS)")
		analyticsCmd.AddCommand(c)
	}
}
