// Package logger provides structured logging setup for PriceScout.
package logger

import (
	"log/slog"
	"os"

	"github.com/pricescout/pricescout/internal/config"
)

// New builds the service logger: JSON to stdout, level from config,
// a "service" attribute on every record, and source locations at
// debug level.
func New(cfg config.Logging) *slog.Logger {
	level := parseLevel(cfg.Level)

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	})

	return slog.New(handler).With("service", cfg.Service)
}

// parseLevel accepts the slog level names case-insensitively and falls
// back to info for anything unrecognized.
func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
