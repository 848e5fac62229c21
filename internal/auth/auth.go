// Package auth locates the Gemini API key.
package auth

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// EnvAPIKey is the environment variable holding the key.
const EnvAPIKey = "GEMINI_API_KEY"

const (
	credentialDir  = ".ec8a-extractor"
	credentialFile = "credentials.gpg"
	passphraseFile = ".gpg-passphrase"
)

// ErrNoAPIKey is returned when no source yields a key.
var ErrNoAPIKey = errors.New("API key not found: set GEMINI_API_KEY or store it in ~/" + credentialDir + "/" + credentialFile)

// GetAPIKey retrieves the Gemini API key from available sources.
// Priority order:
//  1. GEMINI_API_KEY environment variable
//  2. GPG-encrypted file at ~/.ec8a-extractor/credentials.gpg
func GetAPIKey() (string, error) {
	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
		log.Debug().Msg("Using API key from environment variable")
		return key, nil
	}

	key, err := getFromGPG()
	if err == nil && key != "" {
		log.Debug().Msg("Using API key from GPG encrypted file")
		return key, nil
	}

	log.Debug().Err(err).Msg("No API key from GPG credentials")
	if err != nil {
		return "", fmt.Errorf("%w (%v)", ErrNoAPIKey, err)
	}
	return "", ErrNoAPIKey
}

// getFromGPG decrypts the API key from the GPG-encrypted credentials file.
func getFromGPG() (string, error) {
	credPath, err := getCredentialPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(credPath); os.IsNotExist(err) {
		return "", fmt.Errorf("GPG credentials file not found at %s", credPath)
	}

	log.Debug().Str("file", credPath).Msg("Decrypting GPG credentials")

	args := []string{"--decrypt", "--quiet"}
	if p, ok := passphrasePath(); ok {
		args = append(args, "--pinentry-mode", "loopback", "--passphrase-file", p)
	}
	args = append(args, credPath)

	output, err := exec.Command("gpg", args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("GPG decryption failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// getCredentialPath returns the full path to the credentials file.
func getCredentialPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, credentialDir, credentialFile), nil
}

// passphrasePath finds an owner-only passphrase file next to the executable
// or in the working directory, for non-interactive decryption.
func passphrasePath() (string, bool) {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}

	for _, dir := range dirs {
		p := filepath.Join(dir, passphraseFile)
		fi, err := os.Stat(p)
		if err != nil {
			continue
		}
		if mode := fi.Mode().Perm(); mode&0o077 != 0 {
			log.Warn().
				Str("passphrase_file", p).
				Str("permissions", fmt.Sprintf("%04o", mode)).
				Msg("Passphrase file has insecure permissions (should be 0600); skipping")
			continue
		}
		return p, true
	}
	return "", false
}
