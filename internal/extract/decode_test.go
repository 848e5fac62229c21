package extract

import (
	"testing"

	"github.com/fpang/ec8a-extractor/internal/form"
)

func mustValidator(t *testing.T) func(string) (*form.Fields, error) {
	t.Helper()
	schema, err := compileValidator(form.EC8A)
	if err != nil {
		t.Fatalf("compileValidator: %v", err)
	}
	return func(text string) (*form.Fields, error) {
		return decodeFields(text, form.EC8A, schema)
	}
}

func TestDecodeFieldsLenient(t *testing.T) {
	decode := mustValidator(t)
	text := "```json\n" + `{
		"lga": "Ikeja",
		"pollingUnit": null,
		"delimitation": 4040613,
		"votersOnRegister": "1,204",
		"rejectedBallots": "Nil",
		"spoiledBallotPapers": "-",
		"totalValidVotes": 311,
		"votes": {"apc": "120", " PDP ": 191, "LP": "zero", "NNPP": null}
	}` + "\n```"

	f, err := decode(text)
	if err != nil {
		t.Fatalf("decodeFields: %v", err)
	}

	if got, _ := f.Text("lga"); got != "Ikeja" {
		t.Errorf("lga = %q", got)
	}
	if _, ok := f.Text("pollingUnit"); ok {
		t.Error("null pollingUnit should be absent")
	}
	if got, _ := f.Text("delimitation"); got != "4040613" {
		t.Errorf("delimitation = %q", got)
	}
	counts := map[string]int64{
		"votersOnRegister":    1204,
		"rejectedBallots":     0,
		"spoiledBallotPapers": 0,
		"totalValidVotes":     311,
	}
	for k, want := range counts {
		if got, ok := f.Count(k); !ok || got != want {
			t.Errorf("%s = %d (%v), want %d", k, got, ok, want)
		}
	}
	if _, ok := f.Count("accreditedVoters"); ok {
		t.Error("missing count should be absent")
	}
	if f.Vote("APC") != 120 || f.Vote("PDP") != 191 || f.Vote("LP") != 0 {
		t.Errorf("votes = %v", f.Votes)
	}
	if _, ok := f.Votes["NNPP"]; ok {
		t.Error("null vote should be dropped")
	}
}

func TestDecodeFieldsMalformed(t *testing.T) {
	decode := mustValidator(t)
	tests := []struct {
		name string
		text string
	}{
		{"prose", "I could not read this form."},
		{"array", `[1, 2, 3]`},
		{"negative count", `{"totalValidVotes": -5}`},
		{"unreadable count", `{"accreditedVoters": "about forty"}`},
		{"fractional count", `{"accreditedVoters": 12.5}`},
		{"votes not object", `{"votes": [1, 2]}`},
		{"admin wrong type", `{"lga": {"name": "Ikeja"}}`},
		{"count beyond range", `{"totalValidVotes": 1e30}`},
		{"vote beyond range", `{"votes": {"APC": "99999999999999999999"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(tt.text)
			if err == nil {
				t.Fatal("decodeFields succeeded, want error")
			}
			if KindOf(err) != MalformedResponse {
				t.Errorf("kind = %v, want MalformedResponse", KindOf(err))
			}
		})
	}
}

func TestDecodeFieldsRangeWithoutValidator(t *testing.T) {
	tests := []string{
		`{"totalValidVotes": 1e30}`,
		`{"votes": {"APC": 1e19}}`,
		`{"accreditedVoters": -3}`,
		`{"accreditedVoters": 2.5}`,
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			fields, err := decodeFields(text, form.EC8A, nil)
			if err == nil {
				t.Fatalf("decodeFields = %+v, want error", fields)
			}
			if KindOf(err) != MalformedResponse {
				t.Errorf("kind = %v, want MalformedResponse", KindOf(err))
			}
		})
	}
}

func TestDecodeFieldsLargestCount(t *testing.T) {
	fields, err := mustValidator(t)(`{"totalValidVotes": 9007199254740992}`)
	if err != nil {
		t.Fatalf("decodeFields: %v", err)
	}
	if got, _ := fields.Count("totalValidVotes"); got != 1<<53 {
		t.Errorf("totalValidVotes = %d, want %d", got, int64(1)<<53)
	}
}

func TestResponseSchemaCoversLayout(t *testing.T) {
	s := responseSchema(form.EC8A)
	want := len(form.EC8A.AdminFields) + len(form.EC8A.CountFields) + 1
	if len(s.Properties) != want || len(s.Required) != want {
		t.Fatalf("properties/required = %d/%d, want %d", len(s.Properties), len(s.Required), want)
	}
	votes := s.Properties[form.VotesKey]
	if votes == nil || len(votes.Properties) != len(form.TargetParties) {
		t.Fatal("votes schema does not list every party")
	}
}
