//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/spounge-ai/persistor/internal/bus"
	"github.com/spounge-ai/persistor/internal/domain"
	"github.com/spounge-ai/persistor/internal/infra/config"
	"github.com/spounge-ai/persistor/internal/persistor"
	"github.com/spounge-ai/persistor/internal/validation"
	"github.com/spounge-ai/persistor/internal/wiring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const address = "test.persistor"

type harness struct {
	bus *bus.Bus
}

// startPersistor runs a full endpoint over the given backend, isolated by
// a per-test collection name.
func startPersistor(t *testing.T, backend config.BackendConfig) *harness {
	t.Helper()
	ctx := context.Background()

	store, err := wiring.ProvideStore(ctx, backend, nil)
	require.NoError(t, err)

	decoder, err := validation.NewRequestValidator()
	require.NoError(t, err)

	b := bus.New()
	ep := persistor.NewEndpoint(
		persistor.EndpointConfig{Address: address, MinWorkers: 2, MaxWorkers: 16, QueueDepth: 64},
		b, decoder, persistor.NewDispatcher(store, nil), persistor.NewFormatter(nil), nil,
	)
	require.NoError(t, ep.Start(ctx))

	t.Cleanup(func() {
		_ = ep.Stop(ctx)
		_ = b.Close(ctx)
		_ = store.Close(ctx)
	})
	return &harness{bus: b}
}

func (h *harness) send(t *testing.T, body domain.Document) *bus.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	msg, err := h.bus.Request(ctx, address, body)
	require.NoError(t, err)
	return msg
}

func (h *harness) ok(t *testing.T, body domain.Document) domain.Reply {
	t.Helper()
	reply := h.send(t, body).Body().(domain.Reply)
	require.Equal(t, domain.StatusOK, reply.Status(), "message: %s", reply.Message())
	return reply
}

func backends() map[string]config.BackendConfig {
	return map[string]config.BackendConfig{
		"mongo":    mongoBackend,
		"postgres": postgresBackend,
	}
}

func collectionFor(t *testing.T) string {
	return fmt.Sprintf("it_%d", time.Now().UnixNano())
}

func TestPersistor_SaveFindCountDelete(t *testing.T) {
	for name, backend := range backends() {
		t.Run(name, func(t *testing.T) {
			h := startPersistor(t, backend)
			coll := collectionFor(t)

			h.ok(t, domain.Document{"action": "delete", "collection": coll, "matcher": domain.Document{}})

			saved := h.ok(t, domain.Document{"action": "save", "collection": coll, "document": domain.Document{"name": "tim", "age": 30}})
			id, ok := saved[domain.IDField]
			require.True(t, ok, "save without _id replies the generated id")

			found := h.ok(t, domain.Document{"action": "findone", "collection": coll, "matcher": domain.Document{"_id": id}})
			assert.Equal(t, "tim", found[domain.FieldResult].(domain.Document)["name"])

			h.ok(t, domain.Document{"action": "save", "collection": coll, "document": domain.Document{"_id": id, "name": "tom"}})
			found = h.ok(t, domain.Document{"action": "findone", "collection": coll, "matcher": domain.Document{"_id": id}})
			assert.Equal(t, "tom", found[domain.FieldResult].(domain.Document)["name"], "save with _id replaces")

			for i := range 4 {
				h.ok(t, domain.Document{"action": "save", "collection": coll, "document": domain.Document{"n": i}})
			}
			count := h.ok(t, domain.Document{"action": "count", "collection": coll, "matcher": domain.Document{}})
			assert.EqualValues(t, 5, count[domain.FieldCount])

			page := h.ok(t, domain.Document{"action": "find", "collection": coll, "matcher": domain.Document{}, "sort": domain.Document{"n": 1}, "skip": 1, "limit": 2})
			assert.Len(t, page[domain.FieldResults], 2)

			deleted := h.ok(t, domain.Document{"action": "delete", "collection": coll, "matcher": domain.Document{"_id": id}})
			assert.EqualValues(t, 1, deleted[domain.FieldNumber])

			h.ok(t, domain.Document{"action": "dropCollection", "collection": coll})
			cols := h.ok(t, domain.Document{"action": "getCollections"})
			assert.NotContains(t, cols[domain.FieldCollections], coll)
		})
	}
}

func TestPersistor_BatchedFind(t *testing.T) {
	for name, backend := range backends() {
		t.Run(name, func(t *testing.T) {
			h := startPersistor(t, backend)
			coll := collectionFor(t)
			for i := range 103 {
				h.ok(t, domain.Document{"action": "save", "collection": coll, "document": domain.Document{"n": i}})
			}

			msg := h.send(t, domain.Document{"action": "find", "collection": coll, "matcher": domain.Document{}, "batch_size": 10})
			var pages, total int
			for {
				reply := msg.Body().(domain.Reply)
				pages++
				total += len(reply[domain.FieldResults].([]domain.Document))
				if reply.Status() == domain.StatusOK {
					break
				}
				require.Equal(t, domain.StatusMoreExist, reply.Status())

				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				next, err := msg.ReplyAndWait(ctx, domain.Document{})
				cancel()
				require.NoError(t, err)
				msg = next
			}
			assert.Equal(t, 11, pages)
			assert.Equal(t, 103, total)
		})
	}
}

func TestPersistor_UpdateAndCommand(t *testing.T) {
	for name, backend := range backends() {
		t.Run(name, func(t *testing.T) {
			h := startPersistor(t, backend)
			coll := collectionFor(t)
			for i := range 3 {
				h.ok(t, domain.Document{"action": "save", "collection": coll, "document": domain.Document{"group": "a", "n": i}})
			}

			updated := h.ok(t, domain.Document{
				"action": "update", "collection": coll,
				"criteria": domain.Document{"group": "a"},
				"objNew":   domain.Document{"$set": domain.Document{"seen": true}},
				"multi":    true,
			})
			assert.EqualValues(t, 3, updated[domain.FieldNumber])

			count := h.ok(t, domain.Document{"action": "count", "collection": coll, "matcher": domain.Document{"seen": true}})
			assert.EqualValues(t, 3, count[domain.FieldCount])

			ping := h.ok(t, domain.Document{"action": "command", "command": "{ping:1}"})
			assert.Equal(t, 1.0, ping.Result()["ok"])

			stats := h.ok(t, domain.Document{"action": "collectionStats", "collection": coll})
			assert.NotNil(t, stats[domain.FieldStats])
		})
	}
}

func TestPersistor_MongoOperators(t *testing.T) {
	h := startPersistor(t, mongoBackend)
	coll := collectionFor(t)
	for _, age := range []int{10, 20, 30} {
		h.ok(t, domain.Document{"action": "save", "collection": coll, "document": domain.Document{"age": age}})
	}

	found := h.ok(t, domain.Document{"action": "find", "collection": coll, "matcher": domain.Document{"age": domain.Document{"$gte": 20}}})
	assert.Len(t, found[domain.FieldResults], 2)
}

func TestPersistor_PostgresRejectsOperators(t *testing.T) {
	h := startPersistor(t, postgresBackend)

	reply := h.send(t, domain.Document{"action": "find", "collection": collectionFor(t), "matcher": domain.Document{"age": domain.Document{"$gte": 20}}}).Body().(domain.Reply)
	assert.Equal(t, domain.StatusError, reply.Status())
	assert.Contains(t, reply.Message(), "not supported by the postgres backend")
}
