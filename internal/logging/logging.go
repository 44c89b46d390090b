// Package logging adapts the teacher's slog configuration
// (internal/utils/configurelogger.go) into an explicit, non-singleton
// logger construction (Design Note §9: "global singleton event provider
// and configuration file... replace with an explicit handle created at
// bar construction and passed to components"). Unlike the teacher, this
// never calls slog.SetDefault — every component the bar owns (façades,
// zone workers, the switch matrix, the pipeline engine) receives its
// *slog.Logger explicitly from facade.New, so two bar instances in the
// same process never fight over global logger state.
package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
)

// New builds a *slog.Logger at the given level ("none", "error", "warn",
// "info", "debug"), writing text to stdout or JSON to logFile if set,
// exactly as the teacher's ConfigureDefaultLogger chooses between
// handlers. Returns the opened log file (nil if logging to stdout or
// disabled) so the caller can close it on shutdown.
func New(level, logFile string) (*slog.Logger, *os.File, error) {
	if level == "none" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), nil, nil
	}

	switch level {
	case "error", "warn", "info", "debug":
	default:
		return nil, nil, errors.New("unexpected log level: " + level)
	}
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	if logFile == "" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewJSONHandler(f, opts)), f, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "error":
		return slog.LevelError
	case "warn":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
