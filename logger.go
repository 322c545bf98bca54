package vgraph

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"

	"github.com/gogpu/vgraph/internal/logging"
)

// SetLogger configures the logger for vgraph and all its sub-packages.
// By default, vgraph produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by vgraph:
//   - [slog.LevelDebug]: dispatches, pipeline creation, cache decisions
//   - [slog.LevelInfo]: lifecycle events, pipeline cache misses on disk
//   - [slog.LevelWarn]: pipeline cache entries that could not be saved or parsed
//   - [slog.LevelError]: unreadable pipeline cache files
//
// Example:
//
//	vgraph.SetLogger(vgraph.NewConsoleLogger(os.Stderr, slog.LevelDebug))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger used by vgraph.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.Logger()
}

// NewConsoleLogger returns a human-readable logger writing to w.
func NewConsoleLogger(w io.Writer, level slog.Level) *slog.Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          "vgraph",
		Level:           log.Level(level),
	})
	return slog.New(l)
}
