package log

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger so callers don't import zerolog for construction.
type Logger struct {
	zerolog.Logger
}

// New builds the root logger. Level names follow the oracle's LOG_LEVEL_STDOUT
// convention (DEBUG, INFO, WARNING, ERROR, CRITICAL); unknown values fall back
// to info.
func New(level string, pretty bool) Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(os.Stdout)
	if pretty {
		logger = zerolog.New(out)
	}

	return Logger{logger.Level(ParseLevel(level)).With().Timestamp().Logger()}
}

// ParseLevel maps a LOG_LEVEL_STDOUT value to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO", "":
		return zerolog.InfoLevel
	case "WARNING", "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "CRITICAL", "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
