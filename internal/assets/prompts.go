// Package assets provides embedded prompt templates.
//
// Prompt templates are stored as text files under prompts/ and embedded at compile time.
package assets

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
)

// ExtractionSystemPrompt sets the transcription role for EC 8A extraction.
//
//go:embed prompts/ec8a-system.txt
var ExtractionSystemPrompt string

//go:embed prompts/ec8a-extract.txt
var extractionTemplate string

// template.Must panics on a malformed template at startup rather than at call time.
var extractionPromptTmpl = template.Must(template.New("ec8a").Parse(extractionTemplate))

// PromptField describes one field the model is asked to return.
type PromptField struct {
	Key         string
	Description string
}

// ExtractionPromptData holds the dynamic data injected into the extraction prompt.
type ExtractionPromptData struct {
	Admin   []PromptField
	Counts  []PromptField
	Parties []string
}

// RenderExtractionPrompt renders the per-image extraction instructions.
func RenderExtractionPrompt(data ExtractionPromptData) string {
	var buf bytes.Buffer
	_ = extractionPromptTmpl.Execute(&buf, struct {
		Admin   []PromptField
		Counts  []PromptField
		Parties string
	}{
		Admin:   data.Admin,
		Counts:  data.Counts,
		Parties: strings.Join(data.Parties, ", "),
	})
	return buf.String()
}
