package analysis

import "encoding/json"

// ExpertShare is one row of the ranked expert table.
type ExpertShare struct {
	Expert int     `json:"expert"`
	Count  int64   `json:"count"`
	Pct    float64 `json:"pct"`
}

// ConfiguredPool carries entropy relative to the model's configured expert
// count, which diverges from the observed-pool figures whenever some experts
// were never selected in the captured window.
type ConfiguredPool struct {
	NumExperts     int     `json:"num_experts"`
	MaxEntropyBits float64 `json:"max_entropy_bits"`
	LoadBalance    float64 `json:"load_balance"`
}

// Report is the immutable output of one analysis run.
type Report struct {
	ModelID         string          `json:"model_id"`
	Layer           int             `json:"layer"`
	Tokens          int64           `json:"tokens"`
	TotalSelections int64           `json:"total_selections"`
	ExpertsObserved int             `json:"experts_observed"`
	Histogram       map[int]int64   `json:"histogram"`
	EntropyBits     float64         `json:"entropy_bits"`
	MaxEntropyBits  float64         `json:"max_entropy_bits"`
	LoadBalance     float64         `json:"load_balance"`
	TopK            []ExpertShare   `json:"top_k"`
	Configured      *ConfiguredPool `json:"configured,omitempty"`
	ParseWarnings   int             `json:"parse_warnings"`
}

// JSON renders the report as indented, deterministic JSON. Map keys are
// emitted in sorted order, so identical reports are byte-identical.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
