package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the global logger with configuration from environment variables.
// EC8A_LOG_LEVEL controls the log level: debug, info, warn, error (default: info).
// EC8A_LOG_FORMAT selects console (default) or json output on stderr.
func Init() {
	configure(os.Stderr, os.Getenv("EC8A_LOG_LEVEL"), os.Getenv("EC8A_LOG_FORMAT"))
}

func configure(out io.Writer, level, format string) {
	zerolog.SetGlobalLevel(parseLevel(level))

	if strings.EqualFold(format, "json") {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out})
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
