package runtime

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a JSON logger tagged with the service name. LOG_LEVEL
// (debug, info, warn, error) adjusts verbosity; unknown values fall back to info.
func NewLogger(service string) *slog.Logger {
	return newLogger(os.Stdout, service, os.Getenv("LOG_LEVEL"))
}

func newLogger(w io.Writer, service, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(h).With("service", service)
}

// DiscardLogger is handy for tests and tools that must not write logs.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
