package export

import (
	"github.com/fpang/ec8a-extractor/internal/form"
	"github.com/fpang/ec8a-extractor/internal/store"
)

type cellKind int

const (
	cellBlank cellKind = iota
	cellText
	cellNumber
	// cellToken is text written without quotes (the status column).
	cellToken
)

type cell struct {
	kind cellKind
	text string
	num  int64
}

func text(s string) cell  { return cell{kind: cellText, text: s} }
func number(n int64) cell { return cell{kind: cellNumber, num: n} }

// rows lays out one row per record in snapshot order. Records without a
// result leave every field column blank; successful records render a missing
// admin field as empty text, a missing count as blank and a missing category
// as zero.
func rows(records []store.Record, l form.Layout) [][]cell {
	width := 2 + len(l.AdminFields) + len(l.CountFields) + len(l.Categories)
	out := make([][]cell, 0, len(records))

	for _, r := range records {
		row := make([]cell, 2, width)
		row[0] = text(r.SourceName)
		row[1] = cell{kind: cellToken, text: string(r.Status)}

		if r.Status != store.StatusSuccess || r.Result == nil {
			row = row[:width]
			out = append(out, row)
			continue
		}

		for _, f := range l.AdminFields {
			v, _ := r.Result.Text(f.Key)
			row = append(row, text(v))
		}
		for _, f := range l.CountFields {
			if v, ok := r.Result.Count(f.Key); ok {
				row = append(row, number(v))
			} else {
				row = append(row, cell{})
			}
		}
		for _, label := range l.Categories {
			row = append(row, number(r.Result.Vote(label)))
		}
		out = append(out, row)
	}
	return out
}
