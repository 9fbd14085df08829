package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/moelog/moelog/moe"
	"github.com/moelog/moelog/moe/synth"
)

var (
	// CLI flags for capture configuration
	genOut      string // capture log destination; empty falls back to the MOELOG_* env surface
	genLayer    int    // which MoE layer's decisions are captured
	genLogLevel string // log verbosity level

	// CLI flags for the synthetic model
	genModel         string  // model identifier stamped into the meta header
	genSeed          int64   // master seed for the routing stream
	genRequests      int     // generation requests to simulate
	genMaxNewTokens  int     // tokens generated per request
	genTemperature   float64 // sampling temperature stamped into the meta header
	genNumExperts    int     // router pool size per layer
	genTopK          int     // experts selected per token
	genNumLayers     int     // MoE layers in the synthetic model
	genConcentration float64 // Dirichlet concentration for expert popularity skew
)

// generateCmd produces a synthetic capture by running the routing recorder
// inline in a simulated forward pass.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic MoE routing capture",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(genLogLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", genLogLevel)
		}
		logrus.SetLevel(level)

		// Composition root: resolve the capture config once and inject it.
		cfg := moe.RecorderConfig{Enabled: genOut != "", Path: genOut, Layer: genLayer}
		if !cfg.Enabled {
			cfg = moe.ResolveOrDisabled()
		}

		recorder := moe.NewRecorder(moe.Disabled(), moe.MetaRecord{}, nil)
		if cfg.Enabled {
			sink, err := moe.OpenSession(cfg.Path)
			if err != nil {
				logrus.Fatalf("Unable to open capture log: %v", err)
			}
			defer func() {
				if closeErr := sink.Close(); closeErr != nil {
					logrus.Errorf("Error closing capture log: %v", closeErr)
				}
			}()

			meta := moe.NewMetaRecord(genModel, engineVersion, genMaxNewTokens, genTemperature, genSeed, cfg.Layer)
			meta.TopK = genTopK
			meta.NumExperts = genNumExperts
			recorder = moe.NewRecorder(cfg, meta, sink)
		} else {
			logrus.Warn("No capture destination configured (flag --out or MOELOG_PATH); generating without recording")
		}

		engine, err := synth.NewEngine(synth.Config{
			NumExperts:    genNumExperts,
			TopK:          genTopK,
			NumLayers:     genNumLayers,
			Requests:      genRequests,
			MaxNewTokens:  genMaxNewTokens,
			Seed:          genSeed,
			Concentration: genConcentration,
		}, recorder)
		if err != nil {
			logrus.Fatalf("Invalid synthetic engine config: %v", err)
		}

		stats := engine.Run()
		logrus.Infof("Generation complete: %d requests, %d tokens, %d routing decisions in %.2fs (%.1f tokens/sec)",
			stats.Requests, stats.Tokens, stats.Decisions, stats.Elapsed.Seconds(), stats.TokensPerSecond())
		if cfg.Enabled {
			logrus.Infof("Captured %d route records to %s (%d dropped)",
				recorder.Recorded(), cfg.Path, recorder.Dropped())
		}
	},
}

// init sets up CLI flags and subcommands
func init() {
	generateCmd.Flags().StringVar(&genOut, "out", "moe_routes.jsonl", "Capture log destination (empty = use MOELOG_PATH env surface)")
	generateCmd.Flags().IntVar(&genLayer, "layer", 0, "MoE layer whose routing decisions are captured")
	generateCmd.Flags().StringVar(&genLogLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

	generateCmd.Flags().StringVar(&genModel, "model", "synth/moe-toy", "Model identifier for the capture meta header")
	generateCmd.Flags().Int64Var(&genSeed, "seed", 1234, "Seed for synthetic routing generation")
	generateCmd.Flags().IntVar(&genRequests, "requests", 25, "Number of generation requests to simulate")
	generateCmd.Flags().IntVar(&genMaxNewTokens, "max-new-tokens", 128, "Tokens generated per request")
	generateCmd.Flags().Float64Var(&genTemperature, "temperature", 0.0, "Sampling temperature recorded in the meta header")
	generateCmd.Flags().IntVar(&genNumExperts, "num-experts", 60, "Router expert pool size per layer")
	generateCmd.Flags().IntVar(&genTopK, "top-k", 4, "Experts selected per token")
	generateCmd.Flags().IntVar(&genNumLayers, "num-layers", 24, "MoE layers in the synthetic model")
	generateCmd.Flags().Float64Var(&genConcentration, "concentration", 0.5, "Dirichlet concentration for expert popularity (lower = more skew)")

	rootCmd.AddCommand(generateCmd)
}
