package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestGetAPIKeyFromEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "  test-api-key-12345 \n")

	key, err := GetAPIKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "test-api-key-12345" {
		t.Errorf("expected trimmed key, got %q", key)
	}
}

func TestGetAPIKeyNoSource(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv("HOME", t.TempDir())

	_, err := GetAPIKey()
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestGetCredentialPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := getCredentialPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := filepath.Join(home, ".ec8a-extractor", "credentials.gpg")
	if path != expected {
		t.Errorf("expected path %q, got %q", expected, path)
	}
}

func TestPassphraseFilePermissions(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	p := filepath.Join(dir, passphraseFile)
	if err := os.WriteFile(p, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got, ok := passphrasePath(); ok && got == p {
		t.Error("world-readable passphrase file was accepted")
	}

	if err := os.Chmod(p, 0o600); err != nil {
		t.Fatal(err)
	}
	if got, ok := passphrasePath(); !ok || got != p {
		t.Errorf("passphrasePath() = %q, %v; want %q", got, ok, p)
	}
}
