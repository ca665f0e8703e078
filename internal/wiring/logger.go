package wiring

import (
	"io"
	"log/slog"
	"strings"

	infra_config "github.com/spounge-ai/persistor/internal/infra/config"
)

// NewLogger builds the process logger: text for people, JSON for collectors.
func NewLogger(cfg infra_config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
