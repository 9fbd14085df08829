package cmd

import (
	"errors"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/moelog/moelog/moe/analysis"
)

var (
	// CLI flags for offline analysis
	anInput    string // capture log to analyze
	anOutput   string // report JSON destination
	anTopN     int    // ranked experts in the report
	anExperts  int    // configured expert pool override
	anCatalog  string // YAML model catalog for configured pool lookup
	anLogLevel string // log verbosity level
)

// analyzeCmd runs the offline analysis engine over a completed capture.
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a MoE routing capture log",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(anLogLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", anLogLevel)
		}
		logrus.SetLevel(level)

		opts := analysis.Options{TopN: anTopN, TotalExperts: anExperts}

		// When no pool size is given, try the catalog keyed by the capture's
		// model id. The meta header's own num_experts still wins inside
		// Analyze if the catalog has no entry.
		if opts.TotalExperts == 0 && anCatalog != "" {
			meta, err := analysis.ReadMetaFile(anInput)
			if err != nil {
				fatalAnalysis(err)
			}
			if pool, ok := LookupExpertPool(anCatalog, meta.ModelID); ok {
				logrus.Debugf("Model catalog: %s has %d experts", meta.ModelID, pool)
				opts.TotalExperts = pool
			}
		}

		report, err := analysis.AnalyzeFile(anInput, opts)
		if err != nil {
			fatalAnalysis(err)
		}

		analysis.Render(os.Stdout, report)

		if report.ParseWarnings > 0 {
			logrus.Warnf("%d malformed records were skipped during analysis", report.ParseWarnings)
		}

		data, err := report.JSON()
		if err != nil {
			logrus.Fatalf("Unable to serialize report: %v", err)
		}
		if err := os.WriteFile(anOutput, append(data, '\n'), 0o644); err != nil {
			logrus.Fatalf("Unable to write report to %s: %v", anOutput, err)
		}
		logrus.Infof("Report written to %s", anOutput)
	},
}

// fatalAnalysis distinguishes structurally broken captures from I/O problems
// in the exit message.
func fatalAnalysis(err error) {
	var malformed *analysis.MalformedLogError
	if errors.As(err, &malformed) {
		logrus.Fatalf("Capture log is not analyzable: %v", err)
	}
	logrus.Fatalf("Analysis failed: %v", err)
}

// init sets up CLI flags and subcommands
func init() {
	analyzeCmd.Flags().StringVar(&anInput, "input", "moe_routes.jsonl", "Capture log to analyze")
	analyzeCmd.Flags().StringVar(&anOutput, "output", "expert_metrics.json", "Report JSON destination")
	analyzeCmd.Flags().IntVar(&anTopN, "top", 3, "Number of ranked experts in the report")
	analyzeCmd.Flags().IntVar(&anExperts, "num-experts", 0, "Configured expert pool size (0 = meta header or catalog)")
	analyzeCmd.Flags().StringVar(&anCatalog, "catalog", "", "YAML model catalog for expert pool lookup")
	analyzeCmd.Flags().StringVar(&anLogLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

	rootCmd.AddCommand(analyzeCmd)
}
