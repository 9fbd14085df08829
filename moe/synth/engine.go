// Package synth generates synthetic MoE routing decisions. It stands in for
// a real inference engine so the capture path can be exercised end-to-end:
// expert popularity per layer is drawn from a Dirichlet prior, and each token
// samples its top-k experts from the resulting categorical distribution.
package synth

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/moelog/moelog/moe"
)

// Config parameterizes a synthetic generation run.
type Config struct {
	NumExperts   int   // router pool size per MoE layer
	TopK         int   // experts selected per token
	NumLayers    int   // MoE layers in the synthetic model
	Requests     int   // generation requests to simulate
	MaxNewTokens int   // tokens generated per request
	Seed         int64 // master seed; same seed + config = same routing stream

	// Concentration is the symmetric Dirichlet parameter for per-layer expert
	// popularity. Values below 1 concentrate routing on few experts; large
	// values approach a uniform router.
	Concentration float64
}

func (c Config) validate() error {
	switch {
	case c.NumExperts <= 0:
		return fmt.Errorf("synth: num experts must be positive, got %d", c.NumExperts)
	case c.TopK <= 0 || c.TopK > c.NumExperts:
		return fmt.Errorf("synth: top-k must be in [1, %d], got %d", c.NumExperts, c.TopK)
	case c.NumLayers <= 0:
		return fmt.Errorf("synth: num layers must be positive, got %d", c.NumLayers)
	case c.Requests <= 0:
		return fmt.Errorf("synth: requests must be positive, got %d", c.Requests)
	case c.MaxNewTokens <= 0:
		return fmt.Errorf("synth: max new tokens must be positive, got %d", c.MaxNewTokens)
	case c.Concentration <= 0:
		return fmt.Errorf("synth: concentration must be positive, got %g", c.Concentration)
	}
	return nil
}

// layerRouter holds one MoE layer's frozen popularity distribution.
type layerRouter struct {
	index int
	pick  distuv.Categorical
}

// Engine drives the recorder with a deterministic stream of routing
// decisions.
type Engine struct {
	cfg      Config
	recorder *moe.Recorder
	layers   []*layerRouter
	weights  *distmv.Dirichlet
}

// NewEngine validates cfg and freezes the per-layer routing distributions.
func NewEngine(cfg Config, recorder *moe.Recorder) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rng := NewPartitionedRNG(cfg.Seed)

	alpha := make([]float64, cfg.NumExperts)
	for i := range alpha {
		alpha[i] = cfg.Concentration
	}

	layers := make([]*layerRouter, cfg.NumLayers)
	for l := range layers {
		popularity := distmv.NewDirichlet(alpha, rng.SourceFor(fmt.Sprintf("popularity_layer_%d", l)))
		layers[l] = &layerRouter{
			index: l,
			pick:  distuv.NewCategorical(popularity.Rand(nil), rng.SourceFor(fmt.Sprintf("routing_layer_%d", l))),
		}
	}

	ones := make([]float64, cfg.TopK)
	for i := range ones {
		ones[i] = 1
	}

	return &Engine{
		cfg:      cfg,
		recorder: recorder,
		layers:   layers,
		weights:  distmv.NewDirichlet(ones, rng.SourceFor("weights")),
	}, nil
}

// Stats summarizes one generation run.
type Stats struct {
	Requests  int
	Tokens    int
	Decisions int // routing decisions produced across all layers
	Elapsed   time.Duration
}

// TokensPerSecond returns generation throughput.
func (s Stats) TokensPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Tokens) / s.Elapsed.Seconds()
}

// Run simulates generation: for every token of every request, each MoE layer
// produces a routing decision and reports it inline, fire-and-forget, exactly
// the way a real forward pass would. Token indices are left to the recorder's
// per-request sequencing.
func (e *Engine) Run() Stats {
	start := time.Now()
	tokens := 0
	decisions := 0

	for r := 0; r < e.cfg.Requests; r++ {
		reqID := uuid.NewString()
		for t := 0; t < e.cfg.MaxNewTokens; t++ {
			for _, layer := range e.layers {
				ids := layer.selectTopK(e.cfg.TopK)
				e.recorder.Record(moe.RoutingDecision{
					RequestID:        reqID,
					TokenIndex:       -1,
					LayerIndex:       layer.index,
					SelectedExperts:  ids,
					SelectionWeights: e.sampleWeights(),
				})
				decisions++
			}
			tokens++
		}
		e.recorder.EndRequest(reqID)
		logrus.Debugf("synth request %d/%d complete (%s)", r+1, e.cfg.Requests, reqID)
	}

	return Stats{
		Requests:  e.cfg.Requests,
		Tokens:    tokens,
		Decisions: decisions,
		Elapsed:   time.Since(start),
	}
}

// selectTopK draws k distinct expert ids from the layer's popularity
// distribution, in draw order (popular experts tend to come first).
func (l *layerRouter) selectTopK(k int) []int {
	ids := make([]int, 0, k)
	for len(ids) < k {
		id := int(l.pick.Rand())
		if !contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// sampleWeights draws normalized routing weights and orders them descending
// to match the descending-score ordering of the selected experts.
func (e *Engine) sampleWeights() []float64 {
	ws := e.weights.Rand(nil)
	sort.Sort(sort.Reverse(sort.Float64Slice(ws)))
	return ws
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
