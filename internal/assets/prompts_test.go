package assets

import (
	"strings"
	"testing"
)

func TestRenderExtractionPrompt(t *testing.T) {
	got := RenderExtractionPrompt(ExtractionPromptData{
		Admin:   []PromptField{{Key: "lga", Description: "Local Government Area name"}},
		Counts:  []PromptField{{Key: "totalValidVotes", Description: "Total valid votes"}},
		Parties: []string{"APC", "PDP"},
	})

	for _, want := range []string{
		"following parties: APC, PDP.",
		`- "lga" (text): Local Government Area name`,
		`- "totalValidVotes" (integer): Total valid votes`,
		`"Nil", "-", "Zero"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestSystemPromptEmbedded(t *testing.T) {
	if !strings.Contains(ExtractionSystemPrompt, "EC 8A") {
		t.Error("system prompt not embedded")
	}
}
