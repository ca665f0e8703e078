package persistence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/spounge-ai/persistor/internal/domain"
	"github.com/spounge-ai/persistor/pkg/execution"
)

const healthCheckTimeout = 5 * time.Second

// HealthMonitor pings the store periodically and reports transitions
// between healthy and unhealthy.
type HealthMonitor struct {
	store    domain.Store
	logger   *slog.Logger
	onChange func(healthy bool)

	mu        sync.RWMutex
	isHealthy bool
	lastErr   error
}

func NewHealthMonitor(store domain.Store, logger *slog.Logger, onChange func(healthy bool)) *HealthMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthMonitor{
		store:     store,
		logger:    logger,
		onChange:  onChange,
		isHealthy: true, // Assume healthy on startup
	}
}

// Run checks immediately and then every interval until ctx is done.
func (hm *HealthMonitor) Run(ctx context.Context, interval time.Duration) {
	hm.Check(ctx)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hm.Check(ctx)
		}
	}
}

// Check pings the store once and returns the resulting health.
func (hm *HealthMonitor) Check(ctx context.Context) bool {
	_, err := execution.WithTimeout(ctx, healthCheckTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, hm.store.Ping(ctx)
	})
	healthy := err == nil

	hm.mu.Lock()
	changed := healthy != hm.isHealthy
	hm.isHealthy = healthy
	hm.lastErr = err
	hm.mu.Unlock()

	if changed {
		if healthy {
			hm.logger.Info("storage backend recovered")
		} else {
			hm.logger.Error("storage backend unhealthy", "error", err)
		}
	}
	if hm.onChange != nil {
		hm.onChange(healthy)
	}
	return healthy
}

func (hm *HealthMonitor) IsHealthy() bool {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	return hm.isHealthy
}

// LastError returns the error of the most recent failed check, if any.
func (hm *HealthMonitor) LastError() error {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	return hm.lastErr
}
