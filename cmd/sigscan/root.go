package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/scanforge/sigscan/pkg/logging"
)

var (
	verbose bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "sigscan",
	Short: "Sigscan - concurrent signature scanning service",
	Long: `Sigscan compiles signature rule sets and matches binary payloads against
them with bounded execution time. Rule sets hot-reload on change without
interrupting in-flight scans.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Console()
		switch {
		case verbose:
			logging.SetLevel(zerolog.DebugLevel)
		case quiet:
			logging.SetLevel(zerolog.ErrorLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")

	// Add subcommands
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
