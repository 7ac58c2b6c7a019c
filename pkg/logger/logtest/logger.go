// Package logtest provides the logger injected into tests. It uses the same
// tint handler as pkg/logger, uncolored, and stays quiet unless DEBUG is set:
// "2" enables debug, "1" enables info, anything else shows only errors.
package logtest

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

func New() *slog.Logger {
	var level slog.Level
	switch os.Getenv("DEBUG") {
	case "2":
		level = slog.LevelDebug
	case "1":
		level = slog.LevelInfo
	default:
		level = slog.LevelError
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:   level,
		NoColor: true,
	}))
}
