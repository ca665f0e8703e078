package persistence

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/spounge-ai/persistor/internal/domain"
	app_errors "github.com/spounge-ai/persistor/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPeople(t *testing.T, s *MemoryStore) {
	t.Helper()
	ctx := context.Background()
	people := []domain.Document{
		{"_id": "a", "name": "tim", "age": 41.0, "owner": map[string]any{"city": "london"}, "tags": []any{"x", "y"}},
		{"_id": "b", "name": "bob", "age": 25.0, "owner": map[string]any{"city": "paris"}},
		{"_id": "c", "name": "ann", "age": 33.0},
	}
	for _, p := range people {
		require.NoError(t, s.Insert(ctx, "people", p, domain.WriteOptions{}))
	}
}

func ids(docs []domain.Document) []any {
	out := make([]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, d[domain.IDField])
	}
	return out
}

func queryAll(t *testing.T, s *MemoryStore, q domain.Query) []domain.Document {
	t.Helper()
	cur, err := s.Query(context.Background(), "people", q)
	require.NoError(t, err)
	docs, err := domain.ReadAll(context.Background(), cur)
	require.NoError(t, err)
	return docs
}

func TestMemoryStore_InsertGeneratesID(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, "c", domain.Document{"name": "tim"}, domain.WriteOptions{}))
	cur, err := s.Query(ctx, "c", domain.Query{Matcher: domain.Matcher{}})
	require.NoError(t, err)
	docs, err := domain.ReadAll(ctx, cur)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	id, ok := docs[0].ID()
	assert.True(t, ok)
	assert.NotEmpty(t, id)
}

func TestMemoryStore_DuplicateInsertFails(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "c", domain.Document{"_id": "x"}, domain.WriteOptions{}))

	err := s.Insert(ctx, "c", domain.Document{"_id": "x"}, domain.WriteOptions{})
	assert.ErrorIs(t, err, app_errors.ErrStorage)
}

func TestMemoryStore_UpsertReplaces(t *testing.T) {
	s := NewMemoryStore(nil)
	seedPeople(t, s)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "people", "a", domain.Document{"name": "timothy"}, domain.WriteOptions{}))
	docs := queryAll(t, s, domain.Query{Matcher: domain.Matcher{"_id": "a"}})
	require.Len(t, docs, 1)
	assert.Equal(t, domain.Document{"_id": "a", "name": "timothy"}, docs[0])

	require.NoError(t, s.Upsert(ctx, "people", "z", domain.Document{"name": "zed"}, domain.WriteOptions{}))
	n, err := s.Count(ctx, "people", domain.Matcher{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func TestMemoryStore_StoredDocumentsAreIsolated(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	doc := domain.Document{"_id": "a", "tags": []any{"x"}}
	require.NoError(t, s.Insert(ctx, "c", doc, domain.WriteOptions{}))
	doc["tags"].([]any)[0] = "mutated"

	cur, err := s.Query(ctx, "c", domain.Query{})
	require.NoError(t, err)
	docs, err := domain.ReadAll(ctx, cur)
	require.NoError(t, err)
	assert.Equal(t, "x", docs[0]["tags"].([]any)[0])
}

func TestMemoryStore_QueryOperators(t *testing.T) {
	s := NewMemoryStore(nil)
	seedPeople(t, s)

	tests := []struct {
		name    string
		matcher domain.Matcher
		want    []any
	}{
		{"empty matches all", domain.Matcher{}, []any{"a", "b", "c"}},
		{"equality", domain.Matcher{"name": "bob"}, []any{"b"}},
		{"int equals float", domain.Matcher{"age": 33}, []any{"c"}},
		{"dotted path", domain.Matcher{"owner.city": "paris"}, []any{"b"}},
		{"array contains", domain.Matcher{"tags": "y"}, []any{"a"}},
		{"gt", domain.Matcher{"age": map[string]any{"$gt": 30}}, []any{"a", "c"}},
		{"range", domain.Matcher{"age": map[string]any{"$gte": 25, "$lt": 41}}, []any{"b", "c"}},
		{"ne", domain.Matcher{"name": map[string]any{"$ne": "tim"}}, []any{"b", "c"}},
		{"in", domain.Matcher{"name": map[string]any{"$in": []any{"ann", "tim"}}}, []any{"a", "c"}},
		{"nin", domain.Matcher{"name": map[string]any{"$nin": []any{"ann", "tim"}}}, []any{"b"}},
		{"exists", domain.Matcher{"owner": map[string]any{"$exists": true}}, []any{"a", "b"}},
		{"not exists", domain.Matcher{"owner": map[string]any{"$exists": false}}, []any{"c"}},
		{"or", domain.Matcher{"$or": []any{map[string]any{"name": "ann"}, map[string]any{"age": 25}}}, []any{"b", "c"}},
		{"regex", domain.Matcher{"name": map[string]any{"$regex": "^t"}}, []any{"a"}},
		{"no match", domain.Matcher{"name": "nobody"}, []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := queryAll(t, s, domain.Query{Matcher: tt.matcher})
			assert.Equal(t, tt.want, ids(docs))
		})
	}
}

func TestMemoryStore_QueryUnknownOperator(t *testing.T) {
	s := NewMemoryStore(nil)
	seedPeople(t, s)

	_, err := s.Query(context.Background(), "people", domain.Query{Matcher: domain.Matcher{"age": map[string]any{"$near": 1}}})
	assert.ErrorIs(t, err, app_errors.ErrStorage)
}

func TestMemoryStore_SortSkipLimitProjection(t *testing.T) {
	s := NewMemoryStore(nil)
	seedPeople(t, s)

	docs := queryAll(t, s, domain.Query{Sort: domain.SortSpec(map[string]any{"age": 1})})
	assert.Equal(t, []any{"b", "c", "a"}, ids(docs))

	docs = queryAll(t, s, domain.Query{Sort: domain.SortSpec(map[string]any{"age": -1}), Skip: 1, Limit: 1})
	assert.Equal(t, []any{"c"}, ids(docs))

	docs = queryAll(t, s, domain.Query{Skip: 10})
	assert.Empty(t, docs)
	assert.NotNil(t, docs)

	docs = queryAll(t, s, domain.Query{Matcher: domain.Matcher{"_id": "a"}, Keys: map[string]any{"name": 1}})
	assert.Equal(t, []domain.Document{{"_id": "a", "name": "tim"}}, docs)

	docs = queryAll(t, s, domain.Query{Matcher: domain.Matcher{"_id": "a"}, Keys: map[string]any{"name": 1, "_id": 0}})
	assert.Equal(t, []domain.Document{{"name": "tim"}}, docs)

	docs = queryAll(t, s, domain.Query{Matcher: domain.Matcher{"_id": "c"}, Keys: map[string]any{"age": 0}})
	assert.Equal(t, []domain.Document{{"_id": "c", "name": "ann"}}, docs)
}

func TestMemoryStore_CursorPages(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		require.NoError(t, s.Insert(ctx, "c", domain.Document{"n": float64(i)}, domain.WriteOptions{}))
	}

	cur, err := s.Query(ctx, "c", domain.Query{BatchSize: 10})
	require.NoError(t, err)
	defer func() { _ = cur.Close(ctx) }()

	var sizes []int
	for {
		page, more, err := cur.Next(ctx, 10)
		require.NoError(t, err)
		sizes = append(sizes, len(page))
		if !more {
			break
		}
	}
	assert.Equal(t, []int{10, 10, 5}, sizes)
}

func TestMemoryStore_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("first match only", func(t *testing.T) {
		s := NewMemoryStore(nil)
		seedPeople(t, s)
		n, err := s.Update(ctx, "people", domain.Matcher{"age": map[string]any{"$gt": 20}},
			domain.Document{"$inc": map[string]any{"age": 1}}, domain.UpdateOptions{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		docs := queryAll(t, s, domain.Query{Matcher: domain.Matcher{"_id": "a"}})
		assert.Equal(t, 42.0, docs[0]["age"])
	})

	t.Run("multi", func(t *testing.T) {
		s := NewMemoryStore(nil)
		seedPeople(t, s)
		n, err := s.Update(ctx, "people", domain.Matcher{},
			domain.Document{"$set": map[string]any{"owner.city": "rome"}}, domain.UpdateOptions{Multi: true})
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
		cnt, err := s.Count(ctx, "people", domain.Matcher{"owner.city": "rome"})
		require.NoError(t, err)
		assert.EqualValues(t, 3, cnt)
	})

	t.Run("replacement keeps id", func(t *testing.T) {
		s := NewMemoryStore(nil)
		seedPeople(t, s)
		_, err := s.Update(ctx, "people", domain.Matcher{"_id": "b"}, domain.Document{"name": "robert"}, domain.UpdateOptions{})
		require.NoError(t, err)
		docs := queryAll(t, s, domain.Query{Matcher: domain.Matcher{"_id": "b"}})
		assert.Equal(t, []domain.Document{{"_id": "b", "name": "robert"}}, docs)
	})

	t.Run("upsert", func(t *testing.T) {
		s := NewMemoryStore(nil)
		n, err := s.Update(ctx, "people", domain.Matcher{"name": "zed"},
			domain.Document{"$set": map[string]any{"age": 9}, "$setOnInsert": map[string]any{"fresh": true}},
			domain.UpdateOptions{Upsert: true})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		docs := queryAll(t, s, domain.Query{Matcher: domain.Matcher{"name": "zed"}})
		require.Len(t, docs, 1)
		assert.Equal(t, 9, docs[0]["age"])
		assert.Equal(t, true, docs[0]["fresh"])
	})

	t.Run("no match without upsert", func(t *testing.T) {
		s := NewMemoryStore(nil)
		n, err := s.Update(ctx, "people", domain.Matcher{"name": "zed"}, domain.Document{"$set": map[string]any{"a": 1}}, domain.UpdateOptions{})
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)
	})
}

func TestMemoryStore_RemoveAndCollections(t *testing.T) {
	s := NewMemoryStore(nil)
	seedPeople(t, s)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "other", domain.Document{}, domain.WriteOptions{}))

	names, err := s.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "people"}, names)

	n, err := s.Remove(ctx, "people", domain.Matcher{"name": "tim"}, domain.WriteOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.Remove(ctx, "people", domain.Matcher{}, domain.WriteOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	require.NoError(t, s.DropCollection(ctx, "other"))
	names, err = s.Collections(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMemoryStore_FailedRemoveLeavesCollectionIntact(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	for _, d := range []domain.Document{
		{"_id": "a", "a": 1.0},
		{"_id": "k", "k": "keep"},
		{"_id": "b", "a": 2.0},
	} {
		require.NoError(t, s.Insert(ctx, "people", d, domain.WriteOptions{}))
	}

	// The first document matches; the third fails on a malformed $in.
	matcher := domain.Matcher{"$and": []any{
		map[string]any{"k": map[string]any{"$ne": "keep"}},
		map[string]any{"$or": []any{
			map[string]any{"a": 1.0},
			map[string]any{"z": map[string]any{"$in": "x"}},
		}},
	}}
	n, err := s.Remove(ctx, "people", matcher, domain.WriteOptions{})
	require.ErrorIs(t, err, app_errors.ErrStorage)
	assert.Zero(t, n)

	assert.Equal(t, []any{"a", "k", "b"}, ids(queryAll(t, s, domain.Query{})))
}

func TestMemoryStore_FailedMultiUpdateLeavesDocumentsIntact(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "people", domain.Document{"_id": "a", "n": 1.0}, domain.WriteOptions{}))
	require.NoError(t, s.Insert(ctx, "people", domain.Document{"_id": "b", "n": "x"}, domain.WriteOptions{}))

	n, err := s.Update(ctx, "people", domain.Matcher{},
		domain.Document{"$inc": map[string]any{"n": 1}}, domain.UpdateOptions{Multi: true})
	require.ErrorIs(t, err, app_errors.ErrStorage)
	assert.Zero(t, n)

	docs := queryAll(t, s, domain.Query{})
	assert.Equal(t, []domain.Document{{"_id": "a", "n": 1.0}, {"_id": "b", "n": "x"}}, docs)
}

func TestMemoryStore_Commands(t *testing.T) {
	s := NewMemoryStore(nil)
	seedPeople(t, s)
	ctx := context.Background()

	res, err := s.RunCommand(ctx, domain.Command{Text: "{ping:1}"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res["ok"])

	res, err = s.RunCommand(ctx, domain.Command{Doc: domain.Document{"count": "people", "query": map[string]any{"age": map[string]any{"$lt": 40}}}})
	require.NoError(t, err)
	assert.Equal(t, 2.0, res["n"])

	_, err = s.RunCommand(ctx, domain.Command{Text: "{shutdown:1}"})
	assert.ErrorIs(t, err, app_errors.ErrStorage)
	assert.ErrorIs(t, err, app_errors.ErrUnsupported)

	stats, err := s.CollectionStats(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, 3.0, stats["count"])
	assert.Equal(t, "memory", stats["serverUsed"])
}

func TestMemoryStore_ClosedFails(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	require.NoError(t, s.Close(ctx))

	assert.ErrorIs(t, s.Ping(ctx), app_errors.ErrStorage)
	assert.ErrorIs(t, s.Insert(ctx, "c", domain.Document{}, domain.WriteOptions{}), app_errors.ErrStorage)
}

func TestMemoryStore_ConcurrentInserts(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Insert(ctx, "c", domain.Document{"_id": fmt.Sprint(i)}, domain.WriteOptions{}))
		}(i)
	}
	wg.Wait()

	n, err := s.Count(ctx, "c", domain.Matcher{})
	require.NoError(t, err)
	assert.EqualValues(t, 100, n)
}
