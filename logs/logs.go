// Package logs centralizes logger construction so every component
// receives the same slog handler configuration.
package logs

import (
	"log/slog"
	"os"
	"strings"
)

// FromString builds a leveled text logger from a config value such as
// "debug" or "INFO". Unknown values fall back to Info.
func FromString(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
