package synth

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moelog/moelog/moe"
	"github.com/moelog/moelog/moe/analysis"
)

// collectSink gathers records in memory for inspection.
type collectSink struct {
	mu     sync.Mutex
	metas  []moe.MetaRecord
	routes []moe.RouteRecord
}

func (s *collectSink) WriteMeta(meta moe.MetaRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metas = append(s.metas, meta)
	return nil
}

func (s *collectSink) AppendRoute(rec moe.RouteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, rec)
	return nil
}

func testConfig() Config {
	return Config{
		NumExperts:    8,
		TopK:          2,
		NumLayers:     3,
		Requests:      4,
		MaxNewTokens:  16,
		Seed:          42,
		Concentration: 0.5,
	}
}

func recorderInto(t *testing.T, sink moe.RouteSink, layer int) *moe.Recorder {
	t.Helper()
	cfg := moe.RecorderConfig{Enabled: true, Path: "test.jsonl", Layer: layer}
	meta := moe.NewMetaRecord("synth/test", "test/0.0", 16, 0.0, 42, layer)
	return moe.NewRecorder(cfg, meta, sink)
}

func TestNewEngine_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero experts", func(c *Config) { c.NumExperts = 0 }},
		{"top-k exceeds pool", func(c *Config) { c.TopK = 9 }},
		{"zero top-k", func(c *Config) { c.TopK = 0 }},
		{"zero layers", func(c *Config) { c.NumLayers = 0 }},
		{"zero requests", func(c *Config) { c.Requests = 0 }},
		{"zero tokens", func(c *Config) { c.MaxNewTokens = 0 }},
		{"zero concentration", func(c *Config) { c.Concentration = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewEngine(cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestEngine_Run_RecordsOnlyTargetLayer(t *testing.T) {
	// GIVEN a recorder bound to layer 1 of a 3-layer synthetic model
	sink := &collectSink{}
	rec := recorderInto(t, sink, 1)
	engine, err := NewEngine(testConfig(), rec)
	require.NoError(t, err)

	// WHEN the engine runs
	stats := engine.Run()

	// THEN every layer produced decisions but only layer 1 was captured
	cfg := testConfig()
	wantTokens := cfg.Requests * cfg.MaxNewTokens
	assert.Equal(t, wantTokens, stats.Tokens)
	assert.Equal(t, wantTokens*cfg.NumLayers, stats.Decisions)
	assert.Len(t, sink.routes, wantTokens)
	for _, r := range sink.routes {
		assert.Equal(t, 1, r.Layer)
		assert.Len(t, r.TopKIDs, cfg.TopK)
		assert.Len(t, r.TopKWeights, cfg.TopK)
	}
}

func TestEngine_Run_TopKDistinctAndWeightsDescending(t *testing.T) {
	sink := &collectSink{}
	rec := recorderInto(t, sink, 0)
	engine, err := NewEngine(testConfig(), rec)
	require.NoError(t, err)

	engine.Run()

	require.NotEmpty(t, sink.routes)
	for _, r := range sink.routes {
		seen := make(map[int]bool)
		for _, id := range r.TopKIDs {
			assert.False(t, seen[id], "expert ids within a record must be distinct")
			seen[id] = true
			assert.GreaterOrEqual(t, id, 0)
			assert.Less(t, id, testConfig().NumExperts)
		}
		for i := 1; i < len(r.TopKWeights); i++ {
			assert.LessOrEqual(t, r.TopKWeights[i], r.TopKWeights[i-1],
				"weights must be descending")
		}
		var sum float64
		for _, w := range r.TopKWeights {
			assert.GreaterOrEqual(t, w, 0.0)
			assert.LessOrEqual(t, w, 1.0)
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-4, "weights are normalized before rounding")
	}
}

func TestEngine_Run_DeterministicForFixedSeed(t *testing.T) {
	run := func() []moe.RouteRecord {
		sink := &collectSink{}
		engine, err := NewEngine(testConfig(), recorderInto(t, sink, 0))
		require.NoError(t, err)
		engine.Run()
		return sink.routes
	}

	a := run()
	b := run()

	require.Equal(t, len(a), len(b))
	for i := range a {
		// Request ids are uuids and differ; the routing stream must not.
		assert.Equal(t, a[i].TokenIndex, b[i].TokenIndex)
		assert.Equal(t, a[i].TopKIDs, b[i].TopKIDs)
		assert.Equal(t, a[i].TopKWeights, b[i].TopKWeights)
	}
}

func TestEngine_Run_DifferentSeedsDiverge(t *testing.T) {
	run := func(seed int64) []moe.RouteRecord {
		cfg := testConfig()
		cfg.Seed = seed
		sink := &collectSink{}
		engine, err := NewEngine(cfg, recorderInto(t, sink, 0))
		require.NoError(t, err)
		engine.Run()
		return sink.routes
	}

	a := run(1)
	b := run(2)

	require.Equal(t, len(a), len(b))
	same := true
	for i := range a {
		if !assert.ObjectsAreEqual(a[i].TopKIDs, b[i].TopKIDs) {
			same = false
			break
		}
	}
	assert.False(t, same, "different seeds should produce different routing streams")
}

func TestEngine_EndToEnd_CaptureAnalyzes(t *testing.T) {
	// GIVEN a real session writer as the sink
	path := filepath.Join(t.TempDir(), "moe_routes.jsonl")
	writer, err := moe.OpenSession(path)
	require.NoError(t, err)

	cfg := testConfig()
	recCfg := moe.RecorderConfig{Enabled: true, Path: path, Layer: 0}
	meta := moe.NewMetaRecord("synth/test", "test/0.0", cfg.MaxNewTokens, 0.0, cfg.Seed, 0)
	meta.TopK = cfg.TopK
	meta.NumExperts = cfg.NumExperts
	recorder := moe.NewRecorder(recCfg, meta, writer)

	engine, err := NewEngine(cfg, recorder)
	require.NoError(t, err)

	// WHEN the engine runs and the capture is analyzed
	engine.Run()
	require.NoError(t, writer.Close())

	report, err := analysis.AnalyzeFile(path, analysis.Options{})
	require.NoError(t, err)

	// THEN the report is consistent with what the recorder captured
	wantSelections := int64(cfg.Requests*cfg.MaxNewTokens) * int64(cfg.TopK)
	assert.Equal(t, wantSelections, report.TotalSelections)
	assert.Equal(t, int64(cfg.Requests*cfg.MaxNewTokens), report.Tokens)
	assert.Equal(t, 0, report.ParseWarnings)
	require.NotNil(t, report.Configured, "meta num_experts must feed configured-pool entropy")
	assert.Equal(t, cfg.NumExperts, report.Configured.NumExperts)
	assert.GreaterOrEqual(t, report.LoadBalance, 0.0)
	assert.LessOrEqual(t, report.LoadBalance, 1.0)
}
