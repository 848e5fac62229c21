package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fpang/ec8a-extractor/internal/config"
	"github.com/fpang/ec8a-extractor/internal/form"
)

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00"},
		{59 * time.Second, "0:59"},
		{61 * time.Second, "1:01"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		if got := FormatDurationShort(tt.d); got != tt.want {
			t.Errorf("FormatDurationShort(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{123456, "123,456"},
		{1234567, "1,234,567"},
		{-4500, "-4,500"},
	}
	for _, tt := range tests {
		if got := FormatCount(tt.n); got != tt.want {
			t.Errorf("FormatCount(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("a very long error message", 10); got != "a very ..." {
		t.Errorf("got %q", got)
	}
}

func TestLayout(t *testing.T) {
	if got := Layout(config.Default()); len(got.Categories) != len(form.EC8A.Categories) {
		t.Errorf("default layout has %d categories", len(got.Categories))
	}
	cfg := config.Default()
	cfg.Parties = []string{"AAA", "BBB"}
	if got := Layout(cfg).Categories; strings.Join(got, ",") != "AAA,BBB" {
		t.Errorf("categories = %v", got)
	}
}

func TestPromptForDirectory(t *testing.T) {
	var out bytes.Buffer
	if got := promptForDirectory(strings.NewReader("/tmp/forms\n"), &out); got != "/tmp/forms" {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(out.String(), "Folder of EC 8A form images") {
		t.Errorf("prompt = %q", out.String())
	}

	cwd, _ := os.Getwd()
	if got := promptForDirectory(strings.NewReader("\n"), &out); got != cwd {
		t.Errorf("empty input = %q, want %q", got, cwd)
	}
}

func TestPromptForDirectoryExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		in   string
		want string
	}{
		{"~\n", home},
		{"~/ward-04\n", filepath.Join(home, "ward-04")},
		{"\"/tmp/with space\"\n", "/tmp/with space"},
		{"~other/x\n", "~other/x"},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := promptForDirectory(strings.NewReader(tt.in), &out); got != tt.want {
			t.Errorf("input %q = %q, want %q", tt.in, got, tt.want)
		}
	}
}
