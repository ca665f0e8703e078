package wiring

import (
	"bytes"
	"context"
	"testing"

	"github.com/spounge-ai/persistor/internal/domain"
	infra_config "github.com/spounge-ai/persistor/internal/infra/config"
	"github.com/spounge-ai/persistor/internal/infra/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvideStore(t *testing.T) {
	ctx := context.Background()

	store, err := ProvideStore(ctx, infra_config.BackendConfig{Type: infra_config.BackendMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &persistence.MemoryStore{}, store)

	store, err = ProvideStore(ctx, infra_config.BackendConfig{
		Type:           infra_config.BackendMemory,
		CircuitBreaker: infra_config.CircuitBreakerConfig{Enabled: true, MaxFailures: 3},
	}, nil)
	require.NoError(t, err)
	assert.IsType(t, &persistence.CircuitBreakerStore{}, store)

	_, err = ProvideStore(ctx, infra_config.BackendConfig{Type: "couch"}, nil)
	assert.ErrorContains(t, err, "unsupported backend type")
}

func TestContainer_BuildsOnceAndCloses(t *testing.T) {
	ctx := context.Background()
	cfg := &infra_config.Config{
		Address:  "test.persistor",
		Backend:  infra_config.BackendConfig{Type: infra_config.BackendMemory},
		Endpoint: infra_config.EndpointConfig{MinWorkers: 1, MaxWorkers: 2, QueueDepth: 4},
	}
	c := NewContainer(cfg, nil)

	deps, err := c.GetDependencies(ctx)
	require.NoError(t, err)
	again, err := c.GetDependencies(ctx)
	require.NoError(t, err)
	assert.Same(t, deps, again)

	require.NoError(t, deps.Endpoint.Start(ctx))
	reply, err := deps.Bus.Request(ctx, cfg.Address, domain.Document{"action": "getCollections"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOK, reply.Body().(domain.Reply).Status())
	require.NoError(t, deps.Endpoint.Stop(ctx))

	require.NoError(t, c.Close(ctx))
}

func TestConfigureTLS(t *testing.T) {
	tlsCfg, err := ConfigureTLS(infra_config.TLS{})
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)

	_, err = ConfigureTLS(infra_config.TLS{Enabled: true, CertFile: "missing.pem", KeyFile: "missing.key"})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(infra_config.LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("dropped")
	logger.Warn("kept", "k", "v")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"msg":"kept"`)
}
