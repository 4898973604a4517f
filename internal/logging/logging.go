// Package logging configures the process-wide structured logger. It is
// wired from cmd/respdiff's --log-level/--json-logs flags into every
// subcommand before any other component runs, so the diagnostics snapshot,
// the transceiver, and the differential engine all log through the same
// configured slog.Logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the logger's minimum level and output format. The zero
// value logs plain text at info level to stderr.
type Config struct {
	Level            string
	Structured       bool
	StructuredFormat string
}

// Configure builds a slog.Logger from cfg, installs it as slog's process
// default, and returns it.
func Configure(cfg Config) *slog.Logger {
	level := parseLevel(cfg.Level)
	out := io.Writer(os.Stderr)

	var handler slog.Handler
	if cfg.Structured && strings.ToLower(cfg.StructuredFormat) == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
