// Package moe provides flag-gated capture of mixture-of-experts routing
// decisions from an inference engine's hot path.
//
// # Reading Guide
//
// Start with these three files to understand the capture pipeline:
//   - record.go: the wire records (meta header, per-token route records)
//   - recorder.go: the hot-path guard and per-request token sequencing
//   - writer.go: the append-only JSONL session sink
//
// # Architecture
//
// The package defines the capture core; consumers live in sub-packages:
//   - moe/analysis: offline statistics over a completed capture log
//   - moe/synth: a synthetic MoE routing engine that drives the recorder
//
// A Recorder is constructed once at the process composition root from a
// RecorderConfig (see config.go) and handed to every MoE layer that wants to
// report decisions. When disabled, or when a decision belongs to a layer other
// than the configured one, Record is a plain field-read guard and returns
// without touching the sink.
package moe
