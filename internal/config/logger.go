package config

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLogLevel maps env values to slog.Leveler
func ParseLogLevel(s string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger builds the process logger; JSON unless LOG_FORMAT=text.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level := ParseLogLevel(c.LogLevel)
	if strings.EqualFold(strings.TrimSpace(c.LogFormat), "text") {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
