package logger

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
)

// L is the package level logger used across the application.
var L = slog.New(slog.NewTextHandler(os.Stdout, nil))

// Set replaces the default logger with the provided one.
func Set(l *slog.Logger) {
	if l != nil {
		L = l
	}
}

// New builds a slog logger writing to stdout. format is "json" or "text".
func New(format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// Zap returns a sugared zap logger for the components that log through zap.
// It falls back to a no-op logger if the production config cannot be built.
func Zap(level string) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(strings.ToLower(level)); err == nil {
		cfg.Level = lvl
	}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
