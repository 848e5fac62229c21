// Package export derives summary statistics and tabular exports from a
// store snapshot. Everything here is a pure function of the snapshot and the
// layout, except Live, which caches the CSV of a store between changes.
package export

import (
	"github.com/fpang/ec8a-extractor/internal/form"
	"github.com/fpang/ec8a-extractor/internal/store"
)

// Stats summarizes a snapshot.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	// AggregateSum totals the layout's SumField over successful records.
	AggregateSum int64 `json:"aggregateSum"`
}

// Settled reports whether every record reached a terminal state.
func (s Stats) Settled() bool {
	return s.Pending == 0 && s.Processing == 0
}

// Summarize counts records by status and sums the layout's SumField across
// successful records. Non-success records contribute zero.
func Summarize(records []store.Record, l form.Layout) Stats {
	st := Stats{Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case store.StatusPending:
			st.Pending++
		case store.StatusProcessing:
			st.Processing++
		case store.StatusSuccess:
			st.Succeeded++
			if l.SumField != "" {
				v, _ := r.Result.Count(l.SumField)
				st.AggregateSum += v
			}
		case store.StatusError:
			st.Failed++
		}
	}
	return st
}
