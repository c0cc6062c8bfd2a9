package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/sitefactory/internal/learning"
)

var learningsCmd = &cobra.Command{
	Use:   "learnings",
	Short: "Inspect and maintain the learning store",
}

var learningsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learnings, most effective first",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		if err := e.loadLearnings(); err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		typ, _ := cmd.Flags().GetString("type")

		var ls []learning.Learning
		for _, l := range e.learnings.Top(e.learnings.Len()) {
			if typ != "" && string(l.Type) != typ {
				continue
			}
			ls = append(ls, l)
		}
		if limit > 0 && len(ls) > limit {
			ls = ls[:limit]
		}

		if isJSON(cmd) {
			return writeJSON(cmd, ls)
		}
		if len(ls) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No learnings stored.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tEFF\tAPPLIED\tCONTEXT\tINSIGHT")
		for _, l := range ls {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%s\t%s\n",
				l.ID, l.Type, l.EffectivenessScore, l.AppliedCount, truncate(l.Context, 32), truncate(l.Insight, 60))
		}
		return w.Flush()
	},
}

var learningsSuggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Show improvement suggestions derived from learnings",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		if err := e.loadLearnings(); err != nil {
			return err
		}

		sugg := e.learnings.Suggestions()
		if isJSON(cmd) {
			return writeJSON(cmd, sugg)
		}
		if len(sugg) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No suggestions yet.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tIMPACT\tCONF\tSEEN\tDESCRIPTION")
		for _, s := range sugg {
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%d\t%s\n", s.Type, s.ExpectedImpact, s.Confidence, s.Occurrences, truncate(s.Description, 70))
		}
		return w.Flush()
	},
}

var learningsExportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Export all learnings to a versioned JSON document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		if err := e.loadLearnings(); err != nil {
			return err
		}
		if err := e.learnings.Export(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d learnings to %s\n", e.learnings.Len(), args[0])
		return nil
	},
}

var learningsImportCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Merge learnings from a JSON document into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		if err := e.loadLearnings(); err != nil {
			return err
		}
		n, err := e.learnings.Import(args[0])
		if err != nil {
			return err
		}
		if err := e.learnings.Export(e.learningsPath()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d learnings (%d stored).\n", n, e.learnings.Len())
		return nil
	},
}

var learningsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop learnings that proved ineffective",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		if err := e.loadLearnings(); err != nil {
			return err
		}
		minEff, _ := cmd.Flags().GetFloat64("min-effectiveness")
		minSamples, _ := cmd.Flags().GetInt("min-samples")

		n := e.learnings.Prune(minEff, minSamples)
		if err := e.learnings.Export(e.learningsPath()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d learnings (%d remain).\n", n, e.learnings.Len())
		return nil
	},
}

func init() {
	learningsListCmd.Flags().String("format", "text", "Output format: text or json")
	learningsListCmd.Flags().Int("limit", 50, "maximum learnings to list (0 = all)")
	learningsListCmd.Flags().String("type", "", "filter by type (success_pattern, failure_pattern, improvement, command_optimization)")
	learningsSuggestCmd.Flags().String("format", "text", "Output format: text or json")
	learningsPruneCmd.Flags().Float64("min-effectiveness", 0.3, "drop learnings scoring below this")
	learningsPruneCmd.Flags().Int("min-samples", 3, "only judge learnings with at least this many samples")

	learningsCmd.AddCommand(learningsListCmd)
	learningsCmd.AddCommand(learningsSuggestCmd)
	learningsCmd.AddCommand(learningsExportCmd)
	learningsCmd.AddCommand(learningsImportCmd)
	learningsCmd.AddCommand(learningsPruneCmd)
}
