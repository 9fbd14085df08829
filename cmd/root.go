package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// engineVersion is stamped into capture meta headers produced by this tool.
const engineVersion = "moelog/0.1.0"

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "moelog",
	Short: "Capture and analyze MoE expert routing decisions",
	Long: `moelog records which experts a mixture-of-experts router selects per token,
as a line-delimited JSONL capture log, and computes expert-usage statistics
(histogram, entropy, load balance, top-k) from completed captures.`,
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
