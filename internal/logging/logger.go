// Package logging provides structured, leveled logging for an engine
// run, tagging every line with a per-run identifier so that concurrent
// engine instances in the same process don't interleave confusingly.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger scoped to one engine run. level is one of
// zerolog's level names ("debug", "info", "warn", "error"); pretty
// selects a human-readable console writer over the default JSON output.
func New(level string, pretty bool) zerolog.Logger {
	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("run_id", uuid.NewString()).
		Logger()
}
