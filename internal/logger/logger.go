package logger

import (
	"io"
	"log/slog"
	"strings"

	"github.com/golang-cz/devslog"
)

// ParseLevel maps a config level name to slog, falling back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// New builds the process logger. format "json" is meant for production, any
// other value gives the colored devslog output.
func New(w io.Writer, level, format string) *slog.Logger {
	slogOpts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, slogOpts))
	}

	opts := &devslog.Options{
		HandlerOptions:    slogOpts,
		MaxSlicePrintSize: 4,
		SortKeys:          true,
		NewLineAfterLog:   true,
	}
	return slog.New(devslog.NewHandler(w, opts))
}
