package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fpang/ec8a-extractor/internal/form"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"google.golang.org/genai"
)

// responseSchema is the structured-output schema sent with every request.
func responseSchema(l form.Layout) *genai.Schema {
	props := make(map[string]*genai.Schema, len(l.AdminFields)+len(l.CountFields)+1)
	order := make([]string, 0, len(props))

	for _, f := range l.AdminFields {
		props[f.Key] = &genai.Schema{Type: genai.TypeString, Description: f.Description}
		order = append(order, f.Key)
	}
	for _, f := range l.CountFields {
		props[f.Key] = &genai.Schema{Type: genai.TypeInteger, Description: f.Description}
		order = append(order, f.Key)
	}

	votes := make(map[string]*genai.Schema, len(l.Categories))
	for _, label := range l.Categories {
		votes[label] = &genai.Schema{Type: genai.TypeInteger, Description: "Votes for " + label}
	}
	props[form.VotesKey] = &genai.Schema{
		Type:             genai.TypeObject,
		Description:      "Votes scored by each political party",
		Properties:       votes,
		PropertyOrdering: l.Categories,
	}
	order = append(order, form.VotesKey)

	return &genai.Schema{
		Type:             genai.TypeObject,
		Properties:       props,
		Required:         order,
		PropertyOrdering: order,
	}
}

// maxCount is the largest count accepted from the model. It is the largest
// integer a float64 holds exactly, so decoded values convert to int64 losslessly.
const maxCount = 1 << 53

// validationSchema describes an acceptable decoded response. It is looser
// than responseSchema: fields the model omitted are allowed and exported as
// blanks, but present fields must have the right type and counts must lie
// in [0, maxCount].
func validationSchema(l form.Layout) map[string]any {
	count := map[string]any{"type": "integer", "minimum": 0, "maximum": maxCount}
	props := map[string]any{}
	for _, f := range l.AdminFields {
		props[f.Key] = map[string]any{"type": "string"}
	}
	for _, f := range l.CountFields {
		props[f.Key] = count
	}
	props[form.VotesKey] = map[string]any{
		"type":                 "object",
		"additionalProperties": count,
	}
	return map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": props,
	}
}

func compileValidator(l form.Layout) (*jsonschema.Schema, error) {
	b, err := json.Marshal(validationSchema(l))
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("ec8a.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("ec8a.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
