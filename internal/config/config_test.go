package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvModel, EnvConcurrency, EnvTimeout, EnvRPM, EnvMaxDimension, EnvParties, EnvEnvFile} {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("FromEnv() = %+v, want defaults %+v", cfg, Default())
	}
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvModel, "gemini-2.5-pro")
	t.Setenv(EnvConcurrency, "5")
	t.Setenv(EnvTimeout, "45s")
	t.Setenv(EnvRPM, "30")
	t.Setenv(EnvMaxDimension, "0")
	t.Setenv(EnvParties, " APC, PDP ,,LP")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	want := Config{
		Model:        "gemini-2.5-pro",
		Concurrency:  5,
		Timeout:      45 * time.Second,
		RPM:          30,
		MaxDimension: 0,
		Parties:      []string{"APC", "PDP", "LP"},
	}
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("FromEnv() = %+v, want %+v", cfg, want)
	}
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{EnvConcurrency, "three"},
		{EnvConcurrency, "0"},
		{EnvTimeout, "soon"},
		{EnvRPM, "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := FromEnv(); err == nil {
				t.Errorf("FromEnv accepted %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("EC8A_CONCURRENCY=7\nEC8A_RPM=12\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvEnvFile, path)
	// Explicit environment wins over the file.
	t.Setenv(EnvRPM, "4")
	// godotenv only sets variables that are unset, so start from a clean slate.
	os.Unsetenv(EnvConcurrency)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Concurrency != 7 {
		t.Errorf("Concurrency = %d, want 7 from file", cfg.Concurrency)
	}
	if cfg.RPM != 4 {
		t.Errorf("RPM = %d, want 4 from environment", cfg.RPM)
	}
}
