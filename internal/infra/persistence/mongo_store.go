package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spounge-ai/persistor/internal/domain"
	app_errors "github.com/spounge-ai/persistor/internal/errors"
	"github.com/spounge-ai/persistor/internal/infra/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoStore is the MongoDB storage driver adapter. The driver's connection
// pool is the only shared state and is safe for concurrent use.
type MongoStore struct {
	client     *mongo.Client
	db         *mongo.Database
	serverUsed string
	logger     *slog.Logger
}

var _ domain.Store = (*MongoStore)(nil)

// NewMongoStore connects to MongoDB and verifies the connection with a ping.
func NewMongoStore(ctx context.Context, cfg config.BackendConfig, logger *slog.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := options.Client().ApplyURI(cfg.MongoURI())
	if cfg.PoolSize > 0 {
		opts.SetMaxPoolSize(uint64(cfg.PoolSize))
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
		opts.SetServerSelectionTimeout(cfg.ConnectTimeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	serverUsed := cfg.HostPort()
	if cfg.URI != "" {
		serverUsed = cfg.URI
	}
	logger.Info("connected to mongo", "server", serverUsed, "database", cfg.DBName)

	return &MongoStore{
		client:     client,
		db:         client.Database(cfg.DBName),
		serverUsed: serverUsed,
		logger:     logger,
	}, nil
}

func (s *MongoStore) collection(name, writeConcern string) *mongo.Collection {
	if wc := writeConcernFor(writeConcern); wc != nil {
		return s.db.Collection(name, options.Collection().SetWriteConcern(wc))
	}
	return s.db.Collection(name)
}

func (s *MongoStore) Insert(ctx context.Context, collection string, doc domain.Document, opts domain.WriteOptions) error {
	_, err := s.collection(collection, opts.WriteConcern).InsertOne(ctx, map[string]any(doc))
	return app_errors.Storage("insert", ignoreUnacknowledged(err))
}

func (s *MongoStore) Upsert(ctx context.Context, collection string, id any, doc domain.Document, opts domain.WriteOptions) error {
	_, err := s.collection(collection, opts.WriteConcern).ReplaceOne(ctx,
		bson.D{{Key: domain.IDField, Value: id}},
		map[string]any(doc),
		options.Replace().SetUpsert(true),
	)
	return app_errors.Storage("save", ignoreUnacknowledged(err))
}

func (s *MongoStore) Update(ctx context.Context, collection string, criteria domain.Matcher, objNew domain.Document, opts domain.UpdateOptions) (int64, error) {
	coll := s.collection(collection, opts.WriteConcern)
	filter := filterDocument(criteria)

	var (
		res *mongo.UpdateResult
		err error
	)
	switch {
	case !isOperatorUpdate(objNew):
		if opts.Multi {
			return 0, app_errors.Storage("update", errors.New("multi update requires update operators"))
		}
		res, err = coll.ReplaceOne(ctx, filter, map[string]any(objNew), options.Replace().SetUpsert(opts.Upsert))
	case opts.Multi:
		res, err = coll.UpdateMany(ctx, filter, map[string]any(objNew), options.Update().SetUpsert(opts.Upsert))
	default:
		res, err = coll.UpdateOne(ctx, filter, map[string]any(objNew), options.Update().SetUpsert(opts.Upsert))
	}
	if err = ignoreUnacknowledged(err); err != nil {
		return 0, app_errors.Storage("update", err)
	}
	if res == nil {
		return 0, nil
	}
	return res.MatchedCount + res.UpsertedCount, nil
}

func (s *MongoStore) Query(ctx context.Context, collection string, q domain.Query) (domain.Cursor, error) {
	opts := options.Find()
	if len(q.Keys) > 0 {
		opts.SetProjection(q.Keys)
	}
	if sortDoc := sortDocument(q.Sort); sortDoc != nil {
		opts.SetSort(sortDoc)
	}
	if q.Skip > 0 {
		opts.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	if q.BatchSize > 0 {
		opts.SetBatchSize(int32(q.BatchSize))
	}

	cur, err := s.db.Collection(collection).Find(ctx, filterDocument(q.Matcher), opts)
	if err != nil {
		return nil, app_errors.Storage("find", err)
	}
	return &mongoCursor{cur: cur}, nil
}

func (s *MongoStore) Count(ctx context.Context, collection string, matcher domain.Matcher) (int64, error) {
	n, err := s.db.Collection(collection).CountDocuments(ctx, filterDocument(matcher))
	if err != nil {
		return 0, app_errors.Storage("count", err)
	}
	return n, nil
}

func (s *MongoStore) Remove(ctx context.Context, collection string, matcher domain.Matcher, opts domain.WriteOptions) (int64, error) {
	res, err := s.collection(collection, opts.WriteConcern).DeleteMany(ctx, filterDocument(matcher))
	if err = ignoreUnacknowledged(err); err != nil {
		return 0, app_errors.Storage("delete", err)
	}
	if res == nil {
		return 0, nil
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) RunCommand(ctx context.Context, cmd domain.Command) (domain.Document, error) {
	doc, err := commandDocument(cmd)
	if err != nil {
		return nil, app_errors.Storage("command", err)
	}

	var result bson.D
	if err := s.db.RunCommand(ctx, doc).Decode(&result); err != nil {
		return nil, app_errors.Storage("command", err)
	}
	return normalizeDocument(result), nil
}

func (s *MongoStore) Collections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, app_errors.Storage("getCollections", err)
	}
	return names, nil
}

func (s *MongoStore) DropCollection(ctx context.Context, collection string) error {
	return app_errors.Storage("dropCollection", s.db.Collection(collection).Drop(ctx))
}

func (s *MongoStore) CollectionStats(ctx context.Context, collection string) (domain.Document, error) {
	var result bson.D
	err := s.db.RunCommand(ctx, bson.D{{Key: "collStats", Value: collection}}).Decode(&result)
	if err != nil {
		return nil, app_errors.Storage("collectionStats", err)
	}
	stats := normalizeDocument(result)
	stats["serverUsed"] = s.serverUsed
	return stats, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return app_errors.Storage("ping", s.client.Ping(ctx, readpref.Primary()))
}

func (s *MongoStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongo: %w", err)
	}
	s.logger.Info("disconnected from mongo")
	return nil
}

// ignoreUnacknowledged treats the driver's unacknowledged-write sentinel as success.
func ignoreUnacknowledged(err error) error {
	if errors.Is(err, mongo.ErrUnacknowledgedWrite) {
		return nil
	}
	return err
}

// mongoCursor buffers one document ahead so Next can report whether more remain.
type mongoCursor struct {
	mu      sync.Mutex
	cur     *mongo.Cursor
	peeked  domain.Document
	hasPeek bool
	done    bool
}

func (c *mongoCursor) Next(ctx context.Context, n int) ([]domain.Document, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := []domain.Document{}
	if c.hasPeek {
		out = append(out, c.peeked)
		c.peeked, c.hasPeek = nil, false
	}

	for !c.done && (n <= 0 || len(out) < n) {
		doc, ok, err := c.advance(ctx)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			break
		}
		out = append(out, doc)
	}
	if c.done {
		return out, false, nil
	}

	doc, ok, err := c.advance(ctx)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return out, false, nil
	}
	c.peeked, c.hasPeek = doc, true
	return out, true, nil
}

func (c *mongoCursor) advance(ctx context.Context) (domain.Document, bool, error) {
	if !c.cur.Next(ctx) {
		c.done = true
		if err := c.cur.Err(); err != nil {
			return nil, false, app_errors.Storage("find", err)
		}
		return nil, false, nil
	}
	var d bson.D
	if err := c.cur.Decode(&d); err != nil {
		return nil, false, app_errors.Storage("find", err)
	}
	return normalizeDocument(d), true, nil
}

func (c *mongoCursor) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done = true
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return c.cur.Close(closeCtx)
}
