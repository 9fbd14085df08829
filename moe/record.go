package moe

import (
	"fmt"
	"time"
)

// SchemaVersion identifies the capture log format. Bump on incompatible
// record changes so analysis tooling can detect drift.
const SchemaVersion = 1

// Record type discriminators for the JSONL capture log.
const (
	RecordTypeMeta  = "meta"
	RecordTypeRoute = "route"
)

// RoutingDecision is the ephemeral value the inference engine hands to the
// recorder at the moment expert assignment is finalized for one token at one
// layer. It is consumed once and never stored.
type RoutingDecision struct {
	RequestID        string    // opaque identifier of the generation request
	TokenIndex       int       // zero-based position within the request; < 0 means "assign for me"
	LayerIndex       int       // which MoE layer produced this decision
	SelectedExperts  []int     // top-k expert ids, descending routing score
	SelectionWeights []float64 // same length and order as SelectedExperts, each in [0,1]
}

// Validate checks the top-k invariant: ids and weights must be non-empty and
// of equal length.
func (d RoutingDecision) Validate() error {
	if len(d.SelectedExperts) == 0 {
		return fmt.Errorf("routing decision for request %q has no selected experts", d.RequestID)
	}
	if len(d.SelectedExperts) != len(d.SelectionWeights) {
		return fmt.Errorf("routing decision for request %q: %d expert ids vs %d weights",
			d.RequestID, len(d.SelectedExperts), len(d.SelectionWeights))
	}
	return nil
}

// MetaRecord is the capture session header, written exactly once before any
// route records. TopK and NumExperts describe the model's router configuration
// and are optional; the analyzer uses NumExperts for configured-pool entropy
// when present.
type MetaRecord struct {
	Type          string    `json:"type"`
	SchemaVersion int       `json:"schema_version"`
	ModelID       string    `json:"model_id"`
	EngineVersion string    `json:"engine_version"`
	MaxNewTokens  int       `json:"max_new_tokens"`
	Temperature   float64   `json:"temperature"`
	Seed          int64     `json:"seed"`
	Layer         int       `json:"layer"`
	TopK          int       `json:"top_k,omitempty"`
	NumExperts    int       `json:"num_experts,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewMetaRecord fills in the type discriminator, schema version, and creation
// timestamp around the caller-supplied session fields.
func NewMetaRecord(modelID, engineVersion string, maxNewTokens int, temperature float64, seed int64, layer int) MetaRecord {
	return MetaRecord{
		Type:          RecordTypeMeta,
		SchemaVersion: SchemaVersion,
		ModelID:       modelID,
		EngineVersion: engineVersion,
		MaxNewTokens:  maxNewTokens,
		Temperature:   temperature,
		Seed:          seed,
		Layer:         layer,
		CreatedAt:     time.Now().UTC(),
	}
}

// RouteRecord is one captured routing decision, one JSONL line in the log.
type RouteRecord struct {
	Type        string    `json:"type"`
	RequestID   string    `json:"req_id"`
	TokenIndex  int       `json:"token_idx"`
	Layer       int       `json:"layer"`
	TopKIDs     []int     `json:"topk_ids"`
	TopKWeights []float64 `json:"topk_weights"`
}
