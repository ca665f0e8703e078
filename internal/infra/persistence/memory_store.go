package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/spounge-ai/persistor/internal/domain"
	app_errors "github.com/spounge-ai/persistor/internal/errors"
)

// MemoryStore keeps every collection in process memory in insertion order.
// Documents are deep-copied on the way in and out. Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]domain.Document
	closed      bool
	logger      *slog.Logger
}

var _ domain.Store = (*MemoryStore)(nil)

func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		collections: make(map[string][]domain.Document),
		logger:      logger,
	}
}

func (s *MemoryStore) checkOpen(op string) error {
	if s.closed {
		return app_errors.Storage(op, fmt.Errorf("store is closed"))
	}
	return nil
}

// indexOf returns the position of the document with id, or -1.
func indexOf(docs []domain.Document, id any) int {
	for i, d := range docs {
		if existing, ok := d.ID(); ok && equal(existing, id) {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) Insert(ctx context.Context, collection string, doc domain.Document, _ domain.WriteOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("insert"); err != nil {
		return err
	}

	stored := doc.Clone()
	if stored == nil {
		stored = domain.Document{}
	}
	id, ok := stored.ID()
	if !ok {
		id = uuid.NewString()
		stored[domain.IDField] = id
	}
	if indexOf(s.collections[collection], id) >= 0 {
		return app_errors.Storage("insert", fmt.Errorf("duplicate key: %s %v", domain.IDField, id))
	}
	s.collections[collection] = append(s.collections[collection], stored)
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, collection string, id any, doc domain.Document, _ domain.WriteOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("upsert"); err != nil {
		return err
	}

	stored := doc.Clone()
	if stored == nil {
		stored = domain.Document{}
	}
	stored[domain.IDField] = id

	docs := s.collections[collection]
	if i := indexOf(docs, id); i >= 0 {
		docs[i] = stored
		return nil
	}
	s.collections[collection] = append(docs, stored)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection string, criteria domain.Matcher, objNew domain.Document, opts domain.UpdateOptions) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("update"); err != nil {
		return 0, err
	}

	docs := s.collections[collection]
	// Updates are staged and only written once every match applied cleanly.
	staged := make(map[int]domain.Document)
	for i, d := range docs {
		ok, err := matches(d, criteria)
		if err != nil {
			return 0, app_errors.Storage("update", err)
		}
		if !ok {
			continue
		}
		updated, err := applyUpdate(d, objNew, false)
		if err != nil {
			return 0, app_errors.Storage("update", err)
		}
		staged[i] = updated
		if !opts.Multi {
			break
		}
	}
	for i, d := range staged {
		docs[i] = d
	}
	n := int64(len(staged))
	if n > 0 || !opts.Upsert {
		return n, nil
	}

	inserted, err := applyUpdate(upsertSeed(criteria), objNew, true)
	if err != nil {
		return 0, app_errors.Storage("update", err)
	}
	if _, ok := inserted.ID(); !ok {
		inserted[domain.IDField] = uuid.NewString()
	}
	s.collections[collection] = append(docs, inserted)
	return 1, nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, q domain.Query) (domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen("find"); err != nil {
		return nil, err
	}

	var out []domain.Document
	for _, d := range s.collections[collection] {
		ok, err := matches(d, q.Matcher)
		if err != nil {
			return nil, app_errors.Storage("find", err)
		}
		if ok {
			out = append(out, d)
		}
	}

	if len(q.Sort) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, f := range q.Sort {
				a, _ := lookup(out[i], f.Key)
				b, _ := lookup(out[j], f.Key)
				c, _ := compare(a, b)
				if c == 0 {
					continue
				}
				if f.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if q.Skip > 0 {
		if q.Skip >= int64(len(out)) {
			out = nil
		} else {
			out = out[q.Skip:]
		}
	}
	if q.Limit > 0 && q.Limit < int64(len(out)) {
		out = out[:q.Limit]
	}

	page := make([]domain.Document, 0, len(out))
	for _, d := range out {
		p, err := project(d.Clone(), q.Keys)
		if err != nil {
			return nil, app_errors.Storage("find", err)
		}
		page = append(page, p)
	}
	return &sliceCursor{docs: page}, nil
}

func (s *MemoryStore) Count(ctx context.Context, collection string, matcher domain.Matcher) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen("count"); err != nil {
		return 0, err
	}
	return s.countLocked(collection, matcher)
}

func (s *MemoryStore) countLocked(collection string, matcher map[string]any) (int64, error) {
	var n int64
	for _, d := range s.collections[collection] {
		ok, err := matches(d, matcher)
		if err != nil {
			return 0, app_errors.Storage("count", err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Remove(ctx context.Context, collection string, matcher domain.Matcher, _ domain.WriteOptions) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("delete"); err != nil {
		return 0, err
	}

	docs := s.collections[collection]
	kept := make([]domain.Document, 0, len(docs))
	var removed int64
	for _, d := range docs {
		ok, err := matches(d, matcher)
		if err != nil {
			return 0, app_errors.Storage("delete", err)
		}
		if ok {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	if len(kept) == 0 {
		delete(s.collections, collection)
	} else {
		s.collections[collection] = kept
	}
	return removed, nil
}

// RunCommand understands ping, buildInfo, count and drop.
func (s *MemoryStore) RunCommand(ctx context.Context, cmd domain.Command) (domain.Document, error) {
	name, err := cmd.Name()
	if err != nil {
		return nil, app_errors.Storage("command", err)
	}
	body, err := cmd.Decode()
	if err != nil {
		return nil, app_errors.Storage("command", err)
	}

	switch name {
	case "ping":
		if err := s.Ping(ctx); err != nil {
			return nil, err
		}
		return domain.Document{"ok": 1.0}, nil
	case "buildInfo", "buildinfo":
		return domain.Document{"version": "memory", "ok": 1.0}, nil
	case "count":
		coll, _ := body[name].(string)
		query, _ := asMap(body["query"])
		s.mu.RLock()
		n, err := s.countLocked(coll, query)
		s.mu.RUnlock()
		if err != nil {
			return nil, err
		}
		return domain.Document{"n": float64(n), "ok": 1.0}, nil
	case "drop":
		coll, _ := body[name].(string)
		if err := s.DropCollection(ctx, coll); err != nil {
			return nil, err
		}
		return domain.Document{"ns": coll, "ok": 1.0}, nil
	default:
		return nil, app_errors.Storage("command", fmt.Errorf("%w: no such command: '%s'", app_errors.ErrUnsupported, name))
	}
}

func (s *MemoryStore) Collections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen("getCollections"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) DropCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("dropCollection"); err != nil {
		return err
	}
	delete(s.collections, collection)
	return nil
}

func (s *MemoryStore) CollectionStats(ctx context.Context, collection string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen("collectionStats"); err != nil {
		return nil, err
	}
	docs := s.collections[collection]
	size := 0
	for _, d := range docs {
		raw, err := json.Marshal(d)
		if err != nil {
			return nil, app_errors.Storage("collectionStats", err)
		}
		size += len(raw)
	}
	avg := 0.0
	if len(docs) > 0 {
		avg = float64(size) / float64(len(docs))
	}
	return domain.Document{
		"ns":         collection,
		"count":      float64(len(docs)),
		"size":       float64(size),
		"avgObjSize": avg,
		"serverUsed": "memory",
		"ok":         1.0,
	}, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkOpen("ping")
}

func (s *MemoryStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.logger.Info("memory store closed", "collections", len(s.collections))
	return nil
}

// sliceCursor pages over an already materialized result set.
type sliceCursor struct {
	mu   sync.Mutex
	docs []domain.Document
	pos  int
}

func (c *sliceCursor) Next(ctx context.Context, n int) ([]domain.Document, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, false, app_errors.Storage("find", err)
	}
	end := len(c.docs)
	if n > 0 && c.pos+n < end {
		end = c.pos + n
	}
	page := c.docs[c.pos:end]
	c.pos = end
	return page, c.pos < len(c.docs), nil
}

func (c *sliceCursor) Close(context.Context) error {
	c.mu.Lock()
	c.docs, c.pos = nil, 0
	c.mu.Unlock()
	return nil
}
