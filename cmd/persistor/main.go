package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spounge-ai/persistor/internal/app/grpc"
	infra_config "github.com/spounge-ai/persistor/internal/infra/config"
	"github.com/spounge-ai/persistor/internal/infra/persistence"
	"github.com/spounge-ai/persistor/internal/wiring"
	"github.com/spounge-ai/persistor/pkg/patterns/lifecycle"
)

// Set at build time with -ldflags; they take precedence over the environment.
var (
	version string
	commit  string
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := infra_config.Load(os.Getenv(infra_config.EnvConfigPath))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	if commit != "" {
		cfg.BuildCommit = commit
	}

	logger := wiring.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	logger.Info("starting persistor",
		"version", cfg.ServiceVersion,
		"commit", cfg.BuildCommit,
		"address", cfg.Address,
		"backend", cfg.Backend.String(),
	)

	container := wiring.NewContainer(cfg, logger)
	defer func() {
		if err := container.Close(context.Background()); err != nil {
			logger.Error("failed to close container", "error", err)
		}
	}()

	deps, err := container.GetDependencies(ctx)
	if err != nil {
		logger.Error("failed to get dependencies", "error", err)
		os.Exit(1)
	}

	resources := []lifecycle.ManagedResource{deps.Endpoint}
	var setServing func(bool)

	if cfg.Server.Enabled {
		tlsConfig, err := wiring.ConfigureTLS(cfg.Server.TLS)
		if err != nil {
			logger.Error("failed to configure TLS", "error", err)
			os.Exit(1)
		}
		srv, port, err := grpc.New(cfg, deps.Bus, tlsConfig, logger, deps.Classifier)
		if err != nil {
			logger.Error("failed to create gateway", "error", err)
			os.Exit(1)
		}
		resources = append(resources, srv)
		setServing = srv.SetServing
		logger.Info("gateway configured", "port", port)
	}

	monitor := persistence.NewHealthMonitor(deps.Store, logger, setServing)

	go func() {
		for _, r := range resources {
			if err := r.Start(ctx); err != nil {
				logger.Error("error starting resource", "error", err)
				cancel()
				return
			}
		}
		// An interval of zero checks once at startup.
		go monitor.Run(ctx, cfg.Health.Interval)
		logger.Info("persistor started")
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-signalChan:
		logger.Info("received shutdown signal", "signal", s.String())
	case <-ctx.Done():
		logger.Info("context cancelled, initiating shutdown")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	for i := len(resources) - 1; i >= 0; i-- {
		if err := resources[i].Stop(shutdownCtx); err != nil {
			logger.Error("error stopping resource", "error", err)
		}
	}
	logger.Info("shutdown complete")
}
