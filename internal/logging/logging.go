// Package logging provides the process-wide structured logger.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger writing to stderr with a timestamp,
// at the given level ("debug", "info", "warn", "error"; anything else
// falls back to "info").
func New(level string) zerolog.Logger {
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	return l.Level(parseLevel(level))
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
