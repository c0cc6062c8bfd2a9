package cli

import (
	"github.com/spf13/cobra"

	"github.com/lucasnoah/sitefactory/internal/log"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configFile string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "sitefactory",
	Short: "sitefactory: a self-improving E2E tester for the website generator",
	Long: `sitefactory drives the website generator through its intake wizard,
scores every generated site, and learns from each attempt so the next
session runs better.

All state is stored in ~/.sitefactory/ (SQLite for events, JSON for
sessions, reports and learnings).`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetDebugMode(debug)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file (default ./sitefactory.yaml or ~/.sitefactory/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(trendsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(learningsCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
