// Package analysis computes expert-usage statistics from a completed MoE
// capture log. Analyze is a pure function of the log's bytes: the same log
// always yields a byte-identical report.
package analysis

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/moelog/moelog/moe"
)

// maxLineBytes bounds a single capture line. Route records are small; this
// leaves generous headroom for large top-k configurations. An over-long route
// line is skipped and counted as a parse warning, not a fatal error.
const maxLineBytes = 1 << 20

var errLineTooLong = errors.New("capture line exceeds size cap")

// lineReader yields capture lines one at a time without their trailing
// newline. A line longer than maxLineBytes is consumed in full and reported
// as errLineTooLong so callers can skip it and keep reading.
type lineReader struct {
	r *bufio.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

func (lr *lineReader) next() ([]byte, error) {
	var line []byte
	for {
		chunk, err := lr.r.ReadSlice('\n')
		line = append(line, chunk...)
		if err == bufio.ErrBufferFull {
			if len(line) > maxLineBytes {
				if derr := lr.discardLine(); derr != nil && derr != io.EOF {
					return nil, derr
				}
				return nil, errLineTooLong
			}
			continue
		}
		if err != nil && err != io.EOF {
			return nil, err
		}
		trimmed := bytes.TrimRight(line, "\r\n")
		if err == io.EOF && len(trimmed) == 0 {
			return nil, io.EOF
		}
		return trimmed, nil
	}
}

// discardLine consumes the remainder of the current over-long line.
func (lr *lineReader) discardLine() error {
	for {
		_, err := lr.r.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			continue
		}
		return err
	}
}

// MalformedLogError reports a structurally broken capture: empty log or a
// first record that is not a meta header. Fatal to the analysis run.
type MalformedLogError struct {
	Reason string
}

func (e *MalformedLogError) Error() string {
	return fmt.Sprintf("malformed capture log: %s", e.Reason)
}

// Options tunes an analysis run.
type Options struct {
	// TopN caps the ranked expert list in the report. Zero means 3, the
	// historical top-3 table.
	TopN int
	// TotalExperts is the model's configured expert pool size, used for the
	// configured-pool entropy fields. Zero means "take it from the meta
	// record if present, otherwise omit those fields". The analyzer never
	// invents a pool size from the capture alone.
	TotalExperts int
}

// AnalyzeFile opens path and runs Analyze over its contents.
func AnalyzeFile(path string, opts Options) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture log: %w", err)
	}
	defer func() { _ = f.Close() }()
	report, err := Analyze(f, opts)
	if err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", path, err)
	}
	return report, nil
}

// Analyze streams a capture log and returns the usage report.
//
// The meta header is parsed fail-closed: a missing or malformed first record
// aborts with *MalformedLogError. Route records are parsed fail-open: a bad
// or over-long line is skipped and counted as a parse warning, so a capture
// truncated or corrupted by an interrupted run still yields partial results.
// Route records for layers other than the meta's layer are filtered silently.
func Analyze(r io.Reader, opts Options) (*Report, error) {
	topN := opts.TopN
	if topN <= 0 {
		topN = 3
	}

	lr := newLineReader(r)

	meta, err := readMeta(lr)
	if err != nil {
		return nil, err
	}

	histogram := make(map[int]int64)
	var tokens, selections int64
	warnings := 0

	for {
		line, err := lr.next()
		if err == io.EOF {
			break
		}
		if err == errLineTooLong {
			warnings++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading capture log: %w", err)
		}
		if len(line) == 0 {
			continue
		}
		var rec moe.RouteRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			warnings++
			continue
		}
		if rec.Type != moe.RecordTypeRoute {
			// Duplicate meta lines or unknown record types.
			warnings++
			continue
		}
		if len(rec.TopKIDs) == 0 || len(rec.TopKIDs) != len(rec.TopKWeights) {
			warnings++
			continue
		}
		if rec.Layer != meta.Layer {
			continue
		}
		for _, id := range rec.TopKIDs {
			histogram[id]++
		}
		tokens++
		selections += int64(len(rec.TopKIDs))
	}

	report := &Report{
		ModelID:         meta.ModelID,
		Layer:           meta.Layer,
		Tokens:          tokens,
		TotalSelections: selections,
		ExpertsObserved: len(histogram),
		Histogram:       histogram,
		TopK:            rankExperts(histogram, selections, topN),
		ParseWarnings:   warnings,
	}
	report.EntropyBits = entropyBits(histogram, selections)
	report.MaxEntropyBits = maxEntropyBits(len(histogram))
	report.LoadBalance = loadBalance(report.EntropyBits, report.MaxEntropyBits)

	if pool := configuredPool(opts, meta); pool >= len(histogram) && pool > 0 {
		maxConfigured := maxEntropyBits(pool)
		report.Configured = &ConfiguredPool{
			NumExperts:     pool,
			MaxEntropyBits: maxConfigured,
			LoadBalance:    loadBalance(report.EntropyBits, maxConfigured),
		}
	}

	return report, nil
}

// ReadMetaFile parses just the session header of a capture log. Useful when
// a caller needs the model identity (for catalog lookups) before deciding how
// to analyze.
func ReadMetaFile(path string) (moe.MetaRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return moe.MetaRecord{}, fmt.Errorf("opening capture log: %w", err)
	}
	defer func() { _ = f.Close() }()
	return readMeta(newLineReader(f))
}

// readMeta consumes lines up to and including the session header. The first
// non-blank line must be a meta record; the header stays fail-closed, so an
// over-long first line is malformed rather than skippable.
func readMeta(lr *lineReader) (moe.MetaRecord, error) {
	for {
		line, err := lr.next()
		if err == io.EOF {
			return moe.MetaRecord{}, &MalformedLogError{Reason: "log is empty"}
		}
		if err == errLineTooLong {
			return moe.MetaRecord{}, &MalformedLogError{Reason: "first record exceeds the line size cap"}
		}
		if err != nil {
			return moe.MetaRecord{}, fmt.Errorf("reading capture log: %w", err)
		}
		if len(line) == 0 {
			continue
		}
		var meta moe.MetaRecord
		if err := json.Unmarshal(line, &meta); err != nil {
			return moe.MetaRecord{}, &MalformedLogError{Reason: fmt.Sprintf("first record is not valid JSON: %v", err)}
		}
		if meta.Type != moe.RecordTypeMeta {
			return moe.MetaRecord{}, &MalformedLogError{Reason: fmt.Sprintf("first record has type %q, want %q", meta.Type, moe.RecordTypeMeta)}
		}
		return meta, nil
	}
}

// configuredPool picks the expert pool size for configured-pool entropy:
// explicit option first, then the meta header.
func configuredPool(opts Options, meta moe.MetaRecord) int {
	if opts.TotalExperts > 0 {
		return opts.TotalExperts
	}
	return meta.NumExperts
}

// entropyBits computes the Shannon entropy of the normalized histogram in
// bits. Zero-count categories never appear in the map, so the 0*log2(0)=0
// convention holds by construction.
func entropyBits(histogram map[int]int64, total int64) float64 {
	if total == 0 {
		return 0
	}
	p := make([]float64, 0, len(histogram))
	for _, count := range histogram {
		p = append(p, float64(count)/float64(total))
	}
	return stat.Entropy(p) / math.Ln2
}

func maxEntropyBits(experts int) float64 {
	if experts <= 0 {
		return 0
	}
	return math.Log2(float64(experts))
}

// loadBalance normalizes entropy against its maximum. A single-category
// capture has zero entropy deficit relative to itself, so the ratio is 1.0
// by convention.
func loadBalance(entropy, maxEntropy float64) float64 {
	if maxEntropy == 0 {
		return 1.0
	}
	return entropy / maxEntropy
}

// rankExperts sorts by descending count with a stable tie-break on ascending
// expert id, and truncates to n entries.
func rankExperts(histogram map[int]int64, total int64, n int) []ExpertShare {
	ranked := make([]ExpertShare, 0, len(histogram))
	for id, count := range histogram {
		share := ExpertShare{Expert: id, Count: count}
		if total > 0 {
			share.Pct = float64(count) / float64(total) * 100
		}
		ranked = append(ranked, share)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Expert < ranked[j].Expert
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
