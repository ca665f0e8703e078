package wiring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spounge-ai/persistor/internal/bus"
	"github.com/spounge-ai/persistor/internal/domain"
	app_errors "github.com/spounge-ai/persistor/internal/errors"
	infra_config "github.com/spounge-ai/persistor/internal/infra/config"
	"github.com/spounge-ai/persistor/internal/infra/persistence"
	"github.com/spounge-ai/persistor/internal/persistor"
	"github.com/spounge-ai/persistor/internal/validation"
	"github.com/spounge-ai/persistor/pkg/execution"
)

var errUnsupportedBackend = errors.New("unsupported backend type")

// Dependencies are the long-lived components of one persistor process.
type Dependencies struct {
	Store      domain.Store
	Bus        *bus.Bus
	Endpoint   *persistor.Endpoint
	Classifier *app_errors.ErrorClassifier
}

// Container builds the dependencies once and closes them in reverse order.
type Container struct {
	cfg    *infra_config.Config
	logger *slog.Logger

	once sync.Once
	deps *Dependencies
	err  error
}

func NewContainer(cfg *infra_config.Config, logger *slog.Logger) *Container {
	if logger == nil {
		logger = slog.Default()
	}
	return &Container{cfg: cfg, logger: logger}
}

func (c *Container) GetDependencies(ctx context.Context) (*Dependencies, error) {
	c.once.Do(func() {
		c.deps, c.err = c.build(ctx)
	})
	return c.deps, c.err
}

func (c *Container) build(ctx context.Context) (*Dependencies, error) {
	store, err := ProvideStore(ctx, c.cfg.Backend, c.logger)
	if err != nil {
		return nil, err
	}

	decoder, err := validation.NewRequestValidator()
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("failed to create request validator: %w", err)
	}

	classifier := app_errors.NewErrorClassifier(c.logger)
	b := bus.New(bus.WithLogger(c.logger))
	endpoint := persistor.NewEndpoint(
		persistor.EndpointConfig{
			Address:       c.cfg.Address,
			MinWorkers:    c.cfg.Endpoint.MinWorkers,
			MaxWorkers:    c.cfg.Endpoint.MaxWorkers,
			QueueDepth:    c.cfg.Endpoint.QueueDepth,
			CursorTimeout: c.cfg.Endpoint.CursorTimeout,
		},
		b,
		decoder,
		persistor.NewDispatcher(store, c.logger),
		persistor.NewFormatter(classifier),
		c.logger,
	)

	return &Dependencies{
		Store:      store,
		Bus:        b,
		Endpoint:   endpoint,
		Classifier: classifier,
	}, nil
}

// connectPolicy retries the first connection while the database starts.
var connectPolicy = execution.Policy{Attempts: 3, Initial: 500 * time.Millisecond, Max: 5 * time.Second}

// ProvideStore opens the configured backend, wrapped in a circuit breaker
// when one is enabled.
func ProvideStore(ctx context.Context, cfg infra_config.BackendConfig, logger *slog.Logger) (domain.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := execution.WithRetry(ctx, connectPolicy, func(ctx context.Context) (domain.Store, error) {
		return provideBackend(ctx, cfg, logger)
	}, func(err error) bool {
		logger.Warn("backend connection failed", "backend", cfg.String(), "error", err)
		return !errors.Is(err, errUnsupportedBackend)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Type, err)
	}
	if cb := cfg.CircuitBreaker; cb.Enabled {
		return persistence.NewCircuitBreakerStore(store, cb.MaxFailures, cb.ResetTimeout, logger), nil
	}
	return store, nil
}

// Close shuts down the bus and the store.
func (c *Container) Close(ctx context.Context) error {
	if c.deps == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return errors.Join(
		c.deps.Bus.Close(ctx),
		c.deps.Store.Close(ctx),
	)
}
