package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects binary identity, configuration and feature flags,
// then emits a single structured event summarising how the process was
// started.
type StartupLogger struct {
	name         string
	version      string
	initDuration time.Duration

	features map[string]bool
	config   map[string]string
}

// NewStartupLogger creates a StartupLogger for the given binary name
// (e.g. "form-extract", "form-web").
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:     name,
		features: make(map[string]bool),
		config:   make(map[string]string),
	}
}

// Version sets the version string baked into the binary at build time.
func (s *StartupLogger) Version(v string) *StartupLogger {
	s.version = v
	return s
}

// Feature registers a boolean feature flag (e.g. "rateLimit", "xlsx").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// InitDuration records how long startup took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// Log emits a single structured INFO log event with all collected information.
func (s *StartupLogger) Log() {
	process := zerolog.Dict().
		Str("name", s.name).
		Int("pid", os.Getpid()).
		Str("goVersion", runtime.Version()).
		Str("os", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Str("logLevel", zerolog.GlobalLevel().String())
	if s.version != "" {
		process = process.Str("version", s.version)
	}

	evt := log.Info().Dict("process", process)

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}
	if len(s.config) > 0 {
		d := zerolog.Dict()
		for k, v := range s.config {
			d = d.Str(k, v)
		}
		evt = evt.Dict("config", d)
	}
	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}

	evt.Msg("Startup complete")
}
