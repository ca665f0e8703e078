//go:build local_mocks

package wiring

import (
	"context"
	"log/slog"

	"github.com/spounge-ai/persistor/internal/domain"
	infra_config "github.com/spounge-ai/persistor/internal/infra/config"
	"github.com/spounge-ai/persistor/internal/infra/persistence"
)

// provideBackend ignores the configured backend and keeps everything in memory.
func provideBackend(_ context.Context, cfg infra_config.BackendConfig, logger *slog.Logger) (domain.Store, error) {
	logger.Warn("local_mocks build: using the in-memory store", "configured_backend", cfg.Type)
	return persistence.NewMemoryStore(logger), nil
}
