// Package logging builds the process logger: slog text output on stderr
// with the level taken from configuration.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates the application logger for the given level name (debug,
// info, warn, error; anything else means info). It writes to stderr so
// log lines never interleave with transport traffic, and standardizes
// the "error" key to "err".
func New(level string) *slog.Logger {
	return slog.New(handler(os.Stderr, parseLevel(level)))
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(handler(io.Discard, slog.LevelInfo))
}

func handler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	})
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
