package main

import (
	"log/slog"
	"os"

	"github.com/MrWong99/happysentences/internal/config"
)

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger builds the process logger. A non-nil lvl lets the caller change
// the level at runtime; otherwise the level is fixed.
func newLogger(s config.ServerConfig, lvl *slog.LevelVar) *slog.Logger {
	var leveler slog.Leveler = slogLevel(s.LogLevel)
	if lvl != nil {
		lvl.Set(slogLevel(s.LogLevel))
		leveler = lvl
	}
	opts := &slog.HandlerOptions{Level: leveler}
	if s.LogFormat == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
