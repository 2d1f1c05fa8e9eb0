package internal

import (
	"io"
	"log/slog"
)

// ServiceName is attached to every log record.
const ServiceName = "pixeldraft-entitlements"

// NewLogger returns the service logger. Development writes text; every
// other environment writes JSON for the log shipper. level accepts slog's
// names ("debug", "warn", "INFO+2") and falls back to info.
func NewLogger(w io.Writer, env string, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if env == "development" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With("service", ServiceName, "env", env)
}
