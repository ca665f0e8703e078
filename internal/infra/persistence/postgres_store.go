package persistence

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spounge-ai/persistor/internal/domain"
	app_errors "github.com/spounge-ai/persistor/internal/errors"
	"github.com/spounge-ai/persistor/internal/infra/config"
	"github.com/spounge-ai/persistor/pkg/postgres"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	upsertSQL = `INSERT INTO documents (collection, id, body) VALUES ($1, $2::jsonb, $3::jsonb)
ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body`
	insertSQL      = `INSERT INTO documents (collection, id, body) VALUES ($1, $2::jsonb, $3::jsonb)`
	rewriteSQL     = `UPDATE documents SET body = $3::jsonb WHERE collection = $1 AND id = $2::jsonb`
	collectionsSQL = `SELECT DISTINCT collection FROM documents ORDER BY collection`
	statsSQL       = `SELECT count(*), coalesce(sum(pg_column_size(body)), 0)::bigint FROM documents WHERE collection = $1`
	dropSQL        = `DELETE FROM documents WHERE collection = $1`
	versionSQL     = `SELECT current_setting('server_version')`
)

// PostgresStore keeps every collection in one jsonb table. Matchers are
// limited to equality, which maps onto jsonb containment.
type PostgresStore struct {
	client     *postgres.Client
	tx         *TransactionManager[int64]
	serverUsed string
	logger     *slog.Logger
}

var _ domain.Store = (*PostgresStore)(nil)

// NewPostgresStore connects, applies pending migrations and returns the store.
func NewPostgresStore(ctx context.Context, cfg config.BackendConfig, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := MigratePostgres(cfg); err != nil {
		return nil, err
	}

	client, err := postgres.Connect(ctx, cfg.PostgresURL(), postgres.Options{
		MaxConns:       int32(cfg.PoolSize),
		ConnectTimeout: cfg.ConnectTimeout,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("connected to postgres", "server", cfg.HostPort(), "database", cfg.DBName)

	return &PostgresStore{
		client:     client,
		tx:         NewTransactionManager[int64](logger),
		serverUsed: cfg.HostPort(),
		logger:     logger,
	}, nil
}

// MigratePostgres brings the documents schema up to date.
func MigratePostgres(cfg config.BackendConfig) error {
	return postgres.Migrate(migrations, "migrations", cfg.PostgresURL())
}

func (s *PostgresStore) Insert(ctx context.Context, collection string, doc domain.Document, _ domain.WriteOptions) error {
	id, ok := doc.ID()
	if !ok {
		doc = doc.Clone()
		id = uuid.NewString()
		doc[domain.IDField] = id
	}
	return app_errors.Storage("insert", s.write(ctx, insertSQL, collection, id, doc))
}

func (s *PostgresStore) Upsert(ctx context.Context, collection string, id any, doc domain.Document, _ domain.WriteOptions) error {
	if current, ok := doc.ID(); !ok || !equal(current, id) {
		doc = doc.Clone()
		doc[domain.IDField] = id
	}
	return app_errors.Storage("save", s.write(ctx, upsertSQL, collection, id, doc))
}

func (s *PostgresStore) write(ctx context.Context, sql, collection string, id any, doc domain.Document) error {
	rawID, err := encodeJSON(id)
	if err != nil {
		return err
	}
	body, err := encodeJSON(doc)
	if err != nil {
		return err
	}
	if _, err := s.client.DB.Exec(ctx, sql, collection, rawID, body); err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("duplicate key: %s", rawID)
		}
		return err
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, collection string, criteria domain.Matcher, objNew domain.Document, opts domain.UpdateOptions) (int64, error) {
	sql, args, err := buildLockMatches(collection, criteria, opts.Multi)
	if err != nil {
		return 0, app_errors.Storage("update", err)
	}

	n, err := s.tx.Execute(ctx, s.client.DB, func(ctx context.Context, tx pgx.Tx) (int64, error) {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return 0, err
		}
		matched, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
		if err != nil {
			return 0, err
		}

		for _, raw := range matched {
			doc, err := decodeBody(raw)
			if err != nil {
				return 0, err
			}
			updated, err := applyUpdate(doc, objNew, false)
			if err != nil {
				return 0, err
			}
			if err := s.execDoc(ctx, tx, rewriteSQL, collection, updated); err != nil {
				return 0, err
			}
		}
		if len(matched) > 0 || !opts.Upsert {
			return int64(len(matched)), nil
		}

		inserted, err := applyUpdate(upsertSeed(criteria), objNew, true)
		if err != nil {
			return 0, err
		}
		if _, ok := inserted.ID(); !ok {
			inserted[domain.IDField] = uuid.NewString()
		}
		return 1, s.execDoc(ctx, tx, insertSQL, collection, inserted)
	})
	if err != nil {
		return 0, app_errors.Storage("update", err)
	}
	return n, nil
}

func (s *PostgresStore) execDoc(ctx context.Context, tx pgx.Tx, sql, collection string, doc domain.Document) error {
	id, _ := doc.ID()
	rawID, err := encodeJSON(id)
	if err != nil {
		return err
	}
	body, err := encodeJSON(doc)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, sql, collection, rawID, body)
	return err
}

func (s *PostgresStore) Query(ctx context.Context, collection string, q domain.Query) (domain.Cursor, error) {
	sql, args, err := buildSelect(collection, q)
	if err != nil {
		return nil, app_errors.Storage("find", err)
	}
	rows, err := s.client.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, app_errors.Storage("find", err)
	}
	bodies, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, app_errors.Storage("find", err)
	}

	docs := make([]domain.Document, 0, len(bodies))
	for _, raw := range bodies {
		doc, err := decodeBody(raw)
		if err != nil {
			return nil, app_errors.Storage("find", err)
		}
		projected, err := project(doc, q.Keys)
		if err != nil {
			return nil, app_errors.Storage("find", err)
		}
		docs = append(docs, projected)
	}
	return &sliceCursor{docs: docs}, nil
}

func (s *PostgresStore) Count(ctx context.Context, collection string, matcher domain.Matcher) (int64, error) {
	sql, args, err := buildCount(collection, matcher)
	if err != nil {
		return 0, app_errors.Storage("count", err)
	}
	var n int64
	if err := s.client.DB.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, app_errors.Storage("count", err)
	}
	return n, nil
}

func (s *PostgresStore) Remove(ctx context.Context, collection string, matcher domain.Matcher, _ domain.WriteOptions) (int64, error) {
	sql, args, err := buildDelete(collection, matcher)
	if err != nil {
		return 0, app_errors.Storage("delete", err)
	}
	tag, err := s.client.DB.Exec(ctx, sql, args...)
	if err != nil {
		return 0, app_errors.Storage("delete", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) RunCommand(ctx context.Context, cmd domain.Command) (domain.Document, error) {
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
		var version string
		if err := s.client.DB.QueryRow(ctx, versionSQL).Scan(&version); err != nil {
			return nil, app_errors.Storage("command", err)
		}
		return domain.Document{"version": version, "ok": 1.0}, nil
	case "count":
		coll, _ := body[name].(string)
		query, _ := asMap(body["query"])
		n, err := s.Count(ctx, coll, query)
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

func (s *PostgresStore) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.client.DB.Query(ctx, collectionsSQL)
	if err != nil {
		return nil, app_errors.Storage("getCollections", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, app_errors.Storage("getCollections", err)
	}
	return names, nil
}

func (s *PostgresStore) DropCollection(ctx context.Context, collection string) error {
	_, err := s.client.DB.Exec(ctx, dropSQL, collection)
	return app_errors.Storage("dropCollection", err)
}

func (s *PostgresStore) CollectionStats(ctx context.Context, collection string) (domain.Document, error) {
	var count, size int64
	if err := s.client.DB.QueryRow(ctx, statsSQL, collection).Scan(&count, &size); err != nil {
		return nil, app_errors.Storage("collectionStats", err)
	}
	avg := 0.0
	if count > 0 {
		avg = float64(size) / float64(count)
	}
	return domain.Document{
		"ns":         collection,
		"count":      float64(count),
		"size":       float64(size),
		"avgObjSize": avg,
		"serverUsed": s.serverUsed,
		"ok":         1.0,
	}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return app_errors.Storage("ping", s.client.DB.Ping(ctx))
}

func (s *PostgresStore) Close(context.Context) error {
	s.client.Close()
	s.logger.Info("disconnected from postgres")
	return nil
}
