package moe

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Recorder captures routing decisions for one configured MoE layer. It is
// constructed once at the process composition root and passed by pointer to
// every layer that reports decisions; there is no package-level instance.
//
// Record never returns an error and never panics: anything that goes wrong on
// the capture path is counted, logged once, and otherwise invisible to the
// inference engine.
type Recorder struct {
	enabled bool
	layer   int
	sink    RouteSink
	meta    MetaRecord

	metaOnce sync.Once
	failOnce sync.Once

	// Request-local token sequencing; touched only after the guard.
	mu       sync.Mutex
	tokenSeq map[string]int

	recorded atomic.Int64
	dropped  atomic.Int64
}

// NewRecorder builds a recorder from a resolved configuration. The meta
// record is emitted through sink on the first decision that passes the guard.
// A disabled config yields a recorder whose Record is a pure guard check, and
// sink may then be nil.
func NewRecorder(cfg RecorderConfig, meta MetaRecord, sink RouteSink) *Recorder {
	if !cfg.Enabled {
		return &Recorder{}
	}
	meta.Type = RecordTypeMeta
	meta.SchemaVersion = SchemaVersion
	meta.Layer = cfg.Layer
	return &Recorder{
		enabled:  true,
		layer:    cfg.Layer,
		sink:     sink,
		meta:     meta,
		tokenSeq: make(map[string]int),
	}
}

// Enabled reports whether this recorder will ever write anything.
func (r *Recorder) Enabled() bool {
	return r != nil && r.enabled
}

// Recorded returns the number of route records handed to the sink.
func (r *Recorder) Recorded() int64 {
	if r == nil {
		return 0
	}
	return r.recorded.Load()
}

// Dropped returns the number of decisions discarded due to validation or
// sink failure.
func (r *Recorder) Dropped() int64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Record captures one routing decision. Fire-and-forget: callable inline at
// the point expert assignment is finalized, with no return-value dependency.
//
// The guard is the entire cost paid when capture is off or the decision
// belongs to another layer: two field reads and an integer compare, no locks,
// no allocation.
func (r *Recorder) Record(d RoutingDecision) {
	if r == nil || !r.enabled || d.LayerIndex != r.layer {
		return
	}

	r.metaOnce.Do(r.emitMeta)

	if err := d.Validate(); err != nil {
		r.dropped.Add(1)
		routesDropped.Inc()
		logrus.Debugf("MoE capture dropped decision: %v", err)
		return
	}

	rec := RouteRecord{
		Type:        RecordTypeRoute,
		RequestID:   d.RequestID,
		TokenIndex:  r.nextTokenIndex(d),
		Layer:       d.LayerIndex,
		TopKIDs:     d.SelectedExperts,
		TopKWeights: roundWeights(d.SelectionWeights),
	}

	if err := r.sink.AppendRoute(rec); err != nil {
		r.dropped.Add(1)
		routesDropped.Inc()
		r.failOnce.Do(func() {
			writeFailures.Inc()
			logrus.Errorf("MoE capture sink failed, dropping remaining records this session: %v", err)
		})
		return
	}
	r.recorded.Add(1)
	routesRecorded.Inc()
}

// EndRequest retires the token sequencing state for a finished request.
// Engines should call this when a request completes; without it the sequence
// map grows with every request id seen over the process lifetime.
func (r *Recorder) EndRequest(requestID string) {
	if r == nil || !r.enabled {
		return
	}
	r.mu.Lock()
	delete(r.tokenSeq, requestID)
	r.mu.Unlock()
}

// nextTokenIndex assigns a request-local monotonic token position. An
// engine-supplied non-negative index wins and advances the sequence past it.
func (r *Recorder) nextTokenIndex(d RoutingDecision) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := d.TokenIndex
	next := r.tokenSeq[d.RequestID]
	if idx < 0 {
		idx = next
	}
	if idx >= next {
		r.tokenSeq[d.RequestID] = idx + 1
	}
	return idx
}

// emitMeta writes the session header, once. A failure here latches through
// the sink; route appends that follow fail fast and are dropped.
func (r *Recorder) emitMeta() {
	if err := r.sink.WriteMeta(r.meta); err != nil {
		r.failOnce.Do(func() {
			writeFailures.Inc()
			logrus.Errorf("MoE capture failed to write meta header: %v", err)
		})
		return
	}
	metaWrites.Inc()
	logrus.Infof("MoE capture enabled: model=%s layer=%d", r.meta.ModelID, r.meta.Layer)
}

// roundWeights truncates routing weights to 6 decimal places, matching the
// capture format's precision.
func roundWeights(ws []float64) []float64 {
	out := make([]float64, len(ws))
	for i, w := range ws {
		out[i] = math.Round(w*1e6) / 1e6
	}
	return out
}
