// Package form describes the structured content of a scanned result form: the
// administrative and numeric fields the model extracts, and the fixed set of
// category labels (party acronyms) whose counts are reported per form.
//
// A Layout is the caller-configured column set. The exporter, the prompt
// builder and the response schema are all derived from the same Layout so
// that the spreadsheet header, the model instructions and the decoder never
// drift apart.
package form

import (
	"fmt"
	"strings"
)

// FieldDef names one extracted field.
type FieldDef struct {
	// Key is the JSON property name used in the model response.
	Key string
	// Header is the column title in exports.
	Header string
	// Description is given to the model in the response schema.
	Description string
}

// Layout is the full, ordered column definition for one form type.
type Layout struct {
	Name        string
	AdminFields []FieldDef
	CountFields []FieldDef
	Categories  []string

	// SumField is the count key aggregated across successful records.
	SumField string
}

// TargetParties is the category label set printed on the EC 8A form.
var TargetParties = []string{
	"ACCORD", "AA", "AAC", "ADC", "ADP", "APC", "APGA",
	"APM", "APP", "BP", "LP", "NNPP", "NRM", "PDP",
	"PRP", "SDP", "YP", "YPP", "ZLP",
}

// EC8A is the layout of the INEC EC 8A Statement of Poll Result form.
var EC8A = Layout{
	Name: "EC 8A Statement of Poll Result",
	AdminFields: []FieldDef{
		{Key: "lga", Header: "LGA", Description: "Local Government Area name"},
		{Key: "registrationArea", Header: "REGISTRATION AREA", Description: "Registration Area / Ward name"},
		{Key: "pollingUnit", Header: "POLLING UNIT", Description: "Polling Unit name"},
		{Key: "delimitation", Header: "DELIMITATION", Description: "The delimitation code (e.g., 04/04/06/013)"},
	},
	CountFields: []FieldDef{
		{Key: "votersOnRegister", Header: "Number of Voters on the Register", Description: "Number of Voters on the Register"},
		{Key: "accreditedVoters", Header: "Number of Accredited Voters", Description: "Number of Accredited Voters"},
		{Key: "ballotPapersIssued", Header: "Number of Ballot Papers Issued", Description: "Number of Ballot Papers Issued to the Polling Unit"},
		{Key: "unusedBallotPapers", Header: "Number of Unused Ballot Papers", Description: "Number of Unused Ballot Papers"},
		{Key: "spoiledBallotPapers", Header: "Number of Spoiled Ballot Papers", Description: "Number of Spoiled Ballot Papers"},
		{Key: "rejectedBallots", Header: "Number of Rejected Ballots", Description: "Number of Rejected Ballots"},
		{Key: "totalValidVotes", Header: "Total Valid Votes", Description: "Number of Total Valid Votes (Total valid votes cast for all parties)"},
		{Key: "totalUsedBallotPapers", Header: "Total Used Ballot Papers", Description: "Total Number of Used Ballot Papers (Total of #5 + #6 + #7)"},
	},
	Categories: TargetParties,
	SumField:   "totalValidVotes",
}

// VotesKey is the JSON property holding the category mapping.
const VotesKey = "votes"

// WithCategories returns a copy of the layout using a different label set.
// Labels are trimmed and upper-cased; empty entries are dropped.
func (l Layout) WithCategories(labels []string) Layout {
	out := l
	out.Categories = make([]string, 0, len(labels))
	for _, label := range labels {
		label = strings.ToUpper(strings.TrimSpace(label))
		if label != "" {
			out.Categories = append(out.Categories, label)
		}
	}
	return out
}

// Validate reports empty or duplicated keys. Duplicates would make the
// export header ambiguous and the response schema invalid.
func (l Layout) Validate() error {
	seen := make(map[string]bool)
	check := func(kind, key string) error {
		if key == "" {
			return fmt.Errorf("layout %q: empty %s key", l.Name, kind)
		}
		if key == VotesKey {
			return fmt.Errorf("layout %q: %s key %q is reserved", l.Name, kind, key)
		}
		if seen[kind+":"+key] {
			return fmt.Errorf("layout %q: duplicate %s key %q", l.Name, kind, key)
		}
		seen[kind+":"+key] = true
		return nil
	}

	for _, f := range l.AdminFields {
		if err := check("field", f.Key); err != nil {
			return err
		}
	}
	for _, f := range l.CountFields {
		if err := check("field", f.Key); err != nil {
			return err
		}
	}
	for _, c := range l.Categories {
		if err := check("category", c); err != nil {
			return err
		}
	}

	if l.SumField != "" && !l.isCount(l.SumField) {
		return fmt.Errorf("layout %q: sum field %q is not a count field", l.Name, l.SumField)
	}
	return nil
}

func (l Layout) isCount(key string) bool {
	for _, f := range l.CountFields {
		if f.Key == key {
			return true
		}
	}
	return false
}

// Header returns the export header row.
func (l Layout) Header() []string {
	h := make([]string, 0, 2+len(l.AdminFields)+len(l.CountFields)+len(l.Categories))
	h = append(h, "Filename", "Status")
	for _, f := range l.AdminFields {
		h = append(h, f.Header)
	}
	for _, f := range l.CountFields {
		h = append(h, f.Header)
	}
	return append(h, l.Categories...)
}
