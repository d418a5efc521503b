// Package logging builds the structured logger shared by every renderqa command.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger so packages depend on the logging contract
// rather than on the third-party module directly.
type Logger = zerolog.Logger

// New constructs a logger writing to w. Development environments get the
// human-readable console writer; everything else emits JSON lines.
func New(w io.Writer, appEnv string, level string) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || strings.TrimSpace(level) == "" {
		lvl = zerolog.InfoLevel
		if appEnv == "development" {
			lvl = zerolog.DebugLevel
		}
	}

	var out io.Writer = w
	if appEnv == "development" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("app", "renderqa").
		Logger()
}

// Nop returns a logger that discards everything; used by tests and library callers
// that do not care about logs.
func Nop() Logger {
	return zerolog.Nop()
}
