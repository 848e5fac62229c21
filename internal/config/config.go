// Package config resolves runtime settings from the environment.
//
// Values come from process environment variables, optionally seeded from
// .env files (see LoadEnvFiles). Command-line flags are applied on top by the
// binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvModel        = "GEMINI_MODEL"
	EnvConcurrency  = "EC8A_CONCURRENCY"
	EnvTimeout      = "EC8A_TIMEOUT"
	EnvRPM          = "EC8A_RPM"
	EnvMaxDimension = "EC8A_MAX_DIMENSION"
	EnvParties      = "EC8A_PARTIES"
	EnvEnvFile      = "ENV_FILE"
)

// Defaults.
const (
	DefaultConcurrency  = 3
	DefaultTimeout      = 2 * time.Minute
	DefaultMaxDimension = 2048
)

// Config holds the pipeline settings shared by the CLI and the web server.
type Config struct {
	Model        string
	Concurrency  int
	Timeout      time.Duration
	RPM          int
	MaxDimension int
	// Parties overrides the layout's category labels when non-empty.
	Parties []string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Concurrency:  DefaultConcurrency,
		Timeout:      DefaultTimeout,
		MaxDimension: DefaultMaxDimension,
	}
}

// LoadEnvFiles seeds the environment from .env files. If ENV_FILE is set only
// that file is read; otherwise .env.local and then .env are read. Variables
// already set in the process are never overwritten, and missing files are
// ignored.
func LoadEnvFiles() error {
	if envFile := os.Getenv(EnvEnvFile); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// Load reads .env files and then the environment on top of Default.
func Load() (Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return Config{}, err
	}
	return FromEnv()
}

// FromEnv reads the environment on top of Default without touching .env files.
func FromEnv() (Config, error) {
	cfg := Default()
	cfg.Model = strings.TrimSpace(os.Getenv(EnvModel))

	var errs []error
	if v, ok, err := envInt(EnvConcurrency); err != nil {
		errs = append(errs, err)
	} else if ok {
		cfg.Concurrency = v
	}
	if v, ok, err := envInt(EnvRPM); err != nil {
		errs = append(errs, err)
	} else if ok {
		cfg.RPM = v
	}
	if v, ok, err := envInt(EnvMaxDimension); err != nil {
		errs = append(errs, err)
	} else if ok {
		cfg.MaxDimension = v
	}
	if s := strings.TrimSpace(os.Getenv(EnvTimeout)); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvTimeout, err))
		} else {
			cfg.Timeout = d
		}
	}
	cfg.Parties = SplitList(os.Getenv(EnvParties))

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if c.RPM < 0 {
		errs = append(errs, fmt.Errorf("requests per minute must not be negative, got %d", c.RPM))
	}
	if c.MaxDimension < 0 {
		errs = append(errs, fmt.Errorf("max dimension must not be negative, got %d", c.MaxDimension))
	}
	return errors.Join(errs...)
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(name string) (int, bool, error) {
	s := strings.TrimSpace(os.Getenv(name))
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", name, err)
	}
	return v, true, nil
}
