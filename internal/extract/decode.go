package extract

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fpang/ec8a-extractor/internal/form"
	"github.com/fpang/ec8a-extractor/internal/jsonutil"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// zeroWords are what officials write in a box instead of 0.
var zeroWords = map[string]bool{
	"":     true,
	"-":    true,
	"--":   true,
	"nil":  true,
	"zero": true,
	"none": true,
	"o":    true,
}

// decodeFields turns the model's text into Fields. Numeric fields tolerate the
// ways a handwritten zero or a formatted number comes back as text.
func decodeFields(text string, l form.Layout, schema *jsonschema.Schema) (*form.Fields, error) {
	raw, err := jsonutil.ParseJSON[map[string]any](text)
	if err != nil {
		return nil, &Error{Kind: MalformedResponse, Message: "Model response is not a JSON object", Err: err}
	}
	if raw == nil {
		return nil, &Error{Kind: MalformedResponse, Message: "Model response is empty"}
	}

	normalize(raw, l)

	if schema != nil {
		if err := schema.Validate(raw); err != nil {
			return nil, &Error{Kind: MalformedResponse, Message: "Model response does not match the form layout", Err: err}
		}
	}

	fields := form.NewFields()
	for _, f := range l.AdminFields {
		if s, ok := raw[f.Key].(string); ok {
			fields.Admin[f.Key] = strings.TrimSpace(s)
		}
	}
	for _, f := range l.CountFields {
		if v, ok := raw[f.Key]; ok {
			n, err := toCount(f.Key, v)
			if err != nil {
				return nil, err
			}
			fields.Counts[f.Key] = n
		}
	}
	if votes, ok := raw[form.VotesKey].(map[string]any); ok {
		for label, v := range votes {
			n, err := toCount(label, v)
			if err != nil {
				return nil, err
			}
			fields.Votes[label] = n
		}
	}
	return fields, nil
}

// normalize rewrites raw in place: nulls are dropped, admin numbers become
// text, count strings become numbers where they can be read as one, and vote
// labels are upper-cased. Values it cannot read are left for the schema to reject.
func normalize(raw map[string]any, l form.Layout) {
	for _, f := range l.AdminFields {
		switch v := raw[f.Key].(type) {
		case nil:
			delete(raw, f.Key)
		case float64:
			raw[f.Key] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	for _, f := range l.CountFields {
		if v, ok := raw[f.Key]; ok {
			if v == nil {
				delete(raw, f.Key)
				continue
			}
			raw[f.Key] = lenientCount(v)
		}
	}

	votes, ok := raw[form.VotesKey].(map[string]any)
	if !ok {
		if raw[form.VotesKey] == nil {
			delete(raw, form.VotesKey)
		}
		return
	}
	out := make(map[string]any, len(votes))
	for label, v := range votes {
		label = strings.ToUpper(strings.TrimSpace(label))
		if label == "" || v == nil {
			continue
		}
		out[label] = lenientCount(v)
	}
	raw[form.VotesKey] = out
}

// toCount converts a validated count. It still checks the range so a value
// that slipped past a nil or looser validator cannot wrap to a negative int64.
func toCount(key string, v any) (int64, error) {
	n, ok := v.(float64)
	if !ok || n < 0 || n > maxCount || n != math.Trunc(n) {
		return 0, &Error{Kind: MalformedResponse, Message: fmt.Sprintf("Count %q is not a whole number in range: %v", key, v)}
	}
	return int64(n), nil
}

func lenientCount(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if zeroWords[s] {
		return float64(0)
	}
	s = strings.NewReplacer(",", "", " ", "", "_", "").Replace(s)
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return v
	}
	return n
}
