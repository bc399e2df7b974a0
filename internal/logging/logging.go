// Package logging configures the single structured logger every
// component in the process logs through, the way utils/logging.py
// configures one root logger for the whole exchange process.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup installs sensible defaults on zerolog's global logger: RFC3339
// timestamps, a console writer when stdout is a terminal, and the given
// level. It is idempotent to call more than once.
func Setup(level zerolog.Level) {
	zerolog.TimeFieldFormat = time.RFC3339
	var out io.Writer = os.Stdout
	if isTerminal(os.Stdout) {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	zerolog.SetGlobalLevel(level)
	log := zerolog.New(out).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log
	globalLogger = log
}

var globalLogger zerolog.Logger

// For component returns a logger tagged with component=name, matching
// the per-subsystem field convention used by the dispatcher, writer, and
// transport loggers.
func For(component string) zerolog.Logger {
	return globalLogger.With().Str("component", component).Logger()
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func init() {
	// Safe defaults if Setup is never called explicitly (e.g. in tests).
	Setup(zerolog.InfoLevel)
}
