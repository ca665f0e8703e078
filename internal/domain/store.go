package domain

import "context"

// WriteOptions carries per-operation write settings.
type WriteOptions struct {
	// WriteConcern is a symbolic name such as "SAFE" or "MAJORITY".
	// Empty or unknown names use the backend default.
	WriteConcern string
}

// UpdateOptions controls how Update applies objNew.
type UpdateOptions struct {
	WriteOptions
	Upsert bool
	Multi  bool
}

// Query describes a find over one collection.
type Query struct {
	Matcher Matcher
	Keys    map[string]any
	Sort    []SortField
	Skip    int64
	// Limit of zero or less returns every match.
	Limit int64
	// BatchSize hints how many documents the backend fetches per round trip.
	BatchSize int
}

// Cursor pages through query results in backend order.
type Cursor interface {
	// Next returns up to n documents (all remaining when n <= 0) and whether more remain.
	Next(ctx context.Context, n int) ([]Document, bool, error)
	Close(ctx context.Context) error
}

// Store is the storage driver adapter. Implementations must be safe for
// concurrent use; the persistor never serializes calls itself.
type Store interface {
	Insert(ctx context.Context, collection string, doc Document, opts WriteOptions) error
	// Upsert replaces the document with the given id, inserting it if absent.
	Upsert(ctx context.Context, collection string, id any, doc Document, opts WriteOptions) error
	// Update returns the number of documents matched or upserted.
	Update(ctx context.Context, collection string, criteria Matcher, objNew Document, opts UpdateOptions) (int64, error)
	Query(ctx context.Context, collection string, q Query) (Cursor, error)
	Count(ctx context.Context, collection string, matcher Matcher) (int64, error)
	// Remove deletes every match and returns how many were removed.
	Remove(ctx context.Context, collection string, matcher Matcher, opts WriteOptions) (int64, error)
	RunCommand(ctx context.Context, cmd Command) (Document, error)
	Collections(ctx context.Context) ([]string, error)
	DropCollection(ctx context.Context, collection string) error
	CollectionStats(ctx context.Context, collection string) (Document, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// ReadAll drains a cursor and closes it.
func ReadAll(ctx context.Context, cur Cursor) ([]Document, error) {
	defer func() { _ = cur.Close(ctx) }()
	docs, _, err := cur.Next(ctx, 0)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []Document{}
	}
	return docs, nil
}
