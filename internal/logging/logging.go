package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/herald/api/internal/config"
)

// Setup installs the logger described by cfg as the slog default. The
// standard "log" package is routed through it as well.
func Setup(cfg config.LogConfig) {
	slog.SetDefault(New(cfg, os.Stderr))
}

// New builds a logger writing to w.
func New(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", "herald")
}

// ParseLevel maps a config level name onto slog. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
