// Package logging builds the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a structured logger writing to w. Production gets JSON
// at info level; everything else gets human-readable text with debug
// enabled.
func New(env string, w io.Writer) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// NewLogger creates the logger for the environment, writing to stdout.
func NewLogger(env string) *slog.Logger {
	return New(env, os.Stdout)
}
