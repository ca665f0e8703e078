// Package persistor turns bus messages into document store operations.
package persistor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spounge-ai/persistor/internal/domain"
)

// Outcome is the successful result of dispatching one request.
type Outcome struct {
	Action domain.Action
	// Fields holds the action-specific reply fields.
	Fields domain.Reply
	// Cursor is set for batched finds; the endpoint pages through it.
	Cursor    domain.Cursor
	BatchSize int
	Timeout   time.Duration
}

// IDGenerator produces identifiers for documents saved without one.
type IDGenerator func() any

// Dispatcher runs each decoded request against the store. It calls the
// store exactly once per request and keeps no state between requests.
type Dispatcher struct {
	store  domain.Store
	newID  IDGenerator
	logger *slog.Logger
}

type DispatcherOption func(*Dispatcher)

// WithIDGenerator replaces the default UUID string generator.
func WithIDGenerator(gen IDGenerator) DispatcherOption {
	return func(d *Dispatcher) {
		if gen != nil {
			d.newID = gen
		}
	}
}

func NewDispatcher(store domain.Store, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		store:  store,
		newID:  func() any { return uuid.NewString() },
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Dispatch(ctx context.Context, req domain.Request) (Outcome, error) {
	switch r := req.(type) {
	case domain.SaveRequest:
		return d.save(ctx, r)
	case domain.UpdateRequest:
		return d.update(ctx, r)
	case domain.FindRequest:
		return d.find(ctx, r)
	case domain.FindOneRequest:
		return d.findOne(ctx, r)
	case domain.CountRequest:
		n, err := d.store.Count(ctx, r.Collection, r.Matcher)
		if err != nil {
			return Outcome{}, err
		}
		return ok(r, domain.Reply{domain.FieldCount: n}), nil
	case domain.DeleteRequest:
		n, err := d.store.Remove(ctx, r.Collection, r.Matcher, domain.WriteOptions{WriteConcern: r.WriteConcern})
		if err != nil {
			return Outcome{}, err
		}
		return ok(r, domain.Reply{domain.FieldNumber: n}), nil
	case domain.CommandRequest:
		res, err := d.store.RunCommand(ctx, r.Command)
		if err != nil {
			return Outcome{}, err
		}
		return ok(r, domain.Reply{domain.FieldResult: res}), nil
	case domain.GetCollectionsRequest:
		names, err := d.store.Collections(ctx)
		if err != nil {
			return Outcome{}, err
		}
		if names == nil {
			names = []string{}
		}
		return ok(r, domain.Reply{domain.FieldCollections: names}), nil
	case domain.DropCollectionRequest:
		if err := d.store.DropCollection(ctx, r.Collection); err != nil {
			return Outcome{}, err
		}
		return ok(r, nil), nil
	case domain.CollectionStatsRequest:
		stats, err := d.store.CollectionStats(ctx, r.Collection)
		if err != nil {
			return Outcome{}, err
		}
		return ok(r, domain.Reply{domain.FieldStats: stats}), nil
	case nil:
		return Outcome{}, fmt.Errorf("nil request")
	default:
		return Outcome{}, fmt.Errorf("unhandled request type %T", req)
	}
}

func ok(req domain.Request, fields domain.Reply) Outcome {
	return Outcome{Action: req.Action(), Fields: fields}
}

func (d *Dispatcher) save(ctx context.Context, r domain.SaveRequest) (Outcome, error) {
	opts := domain.WriteOptions{WriteConcern: r.WriteConcern}
	if id, exists := r.Document.ID(); exists {
		if err := d.store.Upsert(ctx, r.Collection, id, r.Document, opts); err != nil {
			return Outcome{}, err
		}
		return ok(r, nil), nil
	}

	doc := make(domain.Document, len(r.Document)+1)
	for k, v := range r.Document {
		doc[k] = v
	}
	id := d.newID()
	doc[domain.IDField] = id
	if err := d.store.Insert(ctx, r.Collection, doc, opts); err != nil {
		return Outcome{}, err
	}
	return ok(r, domain.Reply{domain.IDField: id}), nil
}

func (d *Dispatcher) update(ctx context.Context, r domain.UpdateRequest) (Outcome, error) {
	n, err := d.store.Update(ctx, r.Collection, r.Criteria, r.ObjNew, domain.UpdateOptions{
		WriteOptions: domain.WriteOptions{WriteConcern: r.WriteConcern},
		Upsert:       r.Upsert,
		Multi:        r.Multi,
	})
	if err != nil {
		return Outcome{}, err
	}
	return ok(r, domain.Reply{domain.FieldNumber: n}), nil
}

func (d *Dispatcher) find(ctx context.Context, r domain.FindRequest) (Outcome, error) {
	cur, err := d.store.Query(ctx, r.Collection, domain.Query{
		Matcher:   r.Matcher,
		Keys:      r.Keys,
		Sort:      domain.SortSpec(r.Sort),
		Skip:      r.Skip,
		Limit:     r.Limit,
		BatchSize: r.BatchSize,
	})
	if err != nil {
		return Outcome{}, err
	}

	if r.BatchSize > 0 {
		return Outcome{Action: r.Action(), Cursor: cur, BatchSize: r.BatchSize, Timeout: r.Timeout}, nil
	}

	docs, err := domain.ReadAll(ctx, cur)
	if err != nil {
		return Outcome{}, err
	}
	return ok(r, domain.Reply{domain.FieldResults: docs}), nil
}

func (d *Dispatcher) findOne(ctx context.Context, r domain.FindOneRequest) (Outcome, error) {
	cur, err := d.store.Query(ctx, r.Collection, domain.Query{
		Matcher: r.Matcher,
		Keys:    r.Keys,
		Limit:   1,
	})
	if err != nil {
		return Outcome{}, err
	}
	docs, err := domain.ReadAll(ctx, cur)
	if err != nil {
		return Outcome{}, err
	}

	var result any
	if len(docs) > 0 {
		result = docs[0]
	}
	return ok(r, domain.Reply{domain.FieldResult: result}), nil
}
