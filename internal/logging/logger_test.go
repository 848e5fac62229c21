package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"WARN":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"":      zerolog.InfoLevel,
		"loud":  zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONFormatAndStartupEvent(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	configure(&buf, "info", "json")

	NewStartupLogger("form-extract").
		Version("v1.2.3").
		Feature("xlsx", true).
		Config("concurrency", "3").
		Log()

	var evt map[string]any
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if evt["message"] != "Startup complete" {
		t.Errorf("message = %v", evt["message"])
	}
	process, _ := evt["process"].(map[string]any)
	if process["name"] != "form-extract" || process["version"] != "v1.2.3" {
		t.Errorf("process = %v", process)
	}
	config, _ := evt["config"].(map[string]any)
	if config["concurrency"] != "3" {
		t.Errorf("config = %v", config)
	}
}
