package analysis

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// barWidth is the column budget for histogram bars.
const barWidth = 40

// Render prints a terminal frequency table and the distribution metrics for
// a report. The output is plain text; an external plotting stage consumes the
// JSON report instead.
func Render(w io.Writer, r *Report) {
	fmt.Fprintln(w, "=== MoE Expert Usage ===")
	fmt.Fprintf(w, "Model             : %s\n", r.ModelID)
	fmt.Fprintf(w, "Layer             : %d\n", r.Layer)
	fmt.Fprintf(w, "Tokens processed  : %d\n", r.Tokens)
	fmt.Fprintf(w, "Total selections  : %d\n", r.TotalSelections)
	fmt.Fprintf(w, "Experts observed  : %d\n", r.ExpertsObserved)
	if r.ParseWarnings > 0 {
		fmt.Fprintf(w, "Parse warnings    : %d\n", r.ParseWarnings)
	}
	fmt.Fprintln(w)

	renderHistogram(w, r)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Shannon entropy   : %.4f bits\n", r.EntropyBits)
	fmt.Fprintf(w, "Max entropy       : %.4f bits (observed pool of %d)\n", r.MaxEntropyBits, r.ExpertsObserved)
	fmt.Fprintf(w, "Load balance      : %.4f\n", r.LoadBalance)
	if r.Configured != nil {
		fmt.Fprintf(w, "Max entropy       : %.4f bits (configured pool of %d)\n",
			r.Configured.MaxEntropyBits, r.Configured.NumExperts)
		fmt.Fprintf(w, "Load balance      : %.4f (configured pool)\n", r.Configured.LoadBalance)
	}
	fmt.Fprintf(w, "Interpretation    : %s\n", interpretation(r.LoadBalance))

	if len(r.TopK) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Top experts:")
		for rank, share := range r.TopK {
			fmt.Fprintf(w, "  #%d: expert %3d - %6d selections (%6.2f%%)\n",
				rank+1, share.Expert, share.Count, share.Pct)
		}
	}
}

// renderHistogram prints one scaled bar per observed expert, ascending by id.
func renderHistogram(w io.Writer, r *Report) {
	if len(r.Histogram) == 0 {
		fmt.Fprintln(w, "(no selections recorded)")
		return
	}

	ids := make([]int, 0, len(r.Histogram))
	var maxCount int64
	for id, count := range r.Histogram {
		ids = append(ids, id)
		if count > maxCount {
			maxCount = count
		}
	}
	sort.Ints(ids)

	for _, id := range ids {
		count := r.Histogram[id]
		bar := int(count * barWidth / maxCount)
		if bar == 0 && count > 0 {
			bar = 1
		}
		pct := float64(count) / float64(r.TotalSelections) * 100
		fmt.Fprintf(w, "expert %3d %6d %5.1f%% %s\n", id, count, pct, strings.Repeat("#", bar))
	}
}

// interpretation maps a load-balance ratio to a one-line reading of the
// routing distribution.
func interpretation(loadBalance float64) string {
	switch {
	case loadBalance > 0.9:
		return "near-perfect load balance across experts"
	case loadBalance > 0.7:
		return "fairly balanced, with moderate specialization"
	case loadBalance > 0.5:
		return "moderate imbalance, some experts are preferred"
	default:
		return "high specialization, routing heavily favors specific experts"
	}
}
