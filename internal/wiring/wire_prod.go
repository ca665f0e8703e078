//go:build !local_mocks

package wiring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spounge-ai/persistor/internal/domain"
	infra_config "github.com/spounge-ai/persistor/internal/infra/config"
	"github.com/spounge-ai/persistor/internal/infra/persistence"
)

// provideBackend opens the document database named by the backend config.
func provideBackend(ctx context.Context, cfg infra_config.BackendConfig, logger *slog.Logger) (domain.Store, error) {
	switch cfg.Type {
	case infra_config.BackendMongo:
		return persistence.NewMongoStore(ctx, cfg, logger)
	case infra_config.BackendPostgres:
		return persistence.NewPostgresStore(ctx, cfg, logger)
	case infra_config.BackendMemory:
		return persistence.NewMemoryStore(logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedBackend, cfg.Type)
	}
}
