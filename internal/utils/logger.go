package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the process logger writing to stdout. Every record
// carries service=mirador-triage.
func NewLogger(level string, json bool) *slog.Logger {
	return newLogger(os.Stdout, level, json)
}

func newLogger(w io.Writer, level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLogLevel(level)}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if json {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("service", "mirador-triage"))
}

// ParseLogLevel maps debug/info/warn(ing)/error onto slog levels. Anything
// else is info.
func ParseLogLevel(level string) slog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		return slog.LevelWarn
	}
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return parsed
}
