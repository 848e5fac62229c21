package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fpang/ec8a-extractor/internal/cli"
	"github.com/fpang/ec8a-extractor/internal/export"
	"github.com/fpang/ec8a-extractor/internal/form"
	"github.com/fpang/ec8a-extractor/internal/store"
	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	fileColumnWidth  = 32
	unitColumnWidth  = 32
	errorColumnWidth = 48
)

// pollingUnitKey and validVotesKey name the EC 8A fields shown in the summary table.
const (
	pollingUnitKey = "pollingUnit"
	validVotesKey  = "totalValidVotes"
)

// resultRow is one line of the terminal summary.
type resultRow struct {
	File        string
	Status      string
	PollingUnit string
	ValidVotes  string
	Error       string
}

func resultRows(records []store.Record) []resultRow {
	rows := make([]resultRow, 0, len(records))
	for _, r := range records {
		row := resultRow{
			File:   r.SourceName,
			Status: string(r.Status),
			Error:  r.Error,
		}
		if r.Status == store.StatusSuccess && r.Result != nil {
			row.PollingUnit, _ = r.Result.Text(pollingUnitKey)
			if n, ok := r.Result.Count(validVotesKey); ok {
				row.ValidVotes = cli.FormatCount(n)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// renderResults prints one row per record in submission order.
func renderResults(w io.Writer, records []store.Record, layout form.Layout) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: fileColumnWidth},
		{Number: 4, WidthMax: unitColumnWidth},
		{Number: 6, WidthMax: errorColumnWidth},
	})
	t.AppendHeader(table.Row{"#", "File", "Status", "Polling Unit", "Valid Votes", "Error"})

	for i, row := range resultRows(records) {
		t.AppendRow(table.Row{
			i + 1,
			row.File,
			row.Status,
			row.PollingUnit,
			row.ValidVotes,
			cli.Truncate(row.Error, errorColumnWidth),
		})
	}

	stats := export.Summarize(records, layout)
	t.AppendFooter(table.Row{"", "Total", stats.Total, "", cli.FormatCount(stats.AggregateSum), ""})

	fmt.Fprintln(w)
	t.Render()
}

func printStats(w io.Writer, stats export.Stats, layout form.Layout, elapsed time.Duration) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total forms:     %d\n", stats.Total)
	fmt.Fprintf(w, "Succeeded:       %d\n", stats.Succeeded)
	fmt.Fprintf(w, "Needs review:    %d\n", stats.Failed)
	if layout.SumField != "" {
		fmt.Fprintf(w, "Aggregate votes: %s\n", cli.FormatCount(stats.AggregateSum))
	}
	fmt.Fprintf(w, "Elapsed:         %s\n", cli.FormatDurationShort(elapsed))
	fmt.Fprintln(w)
}
