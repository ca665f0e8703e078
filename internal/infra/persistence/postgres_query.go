package persistence

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/spounge-ai/persistor/internal/domain"
	app_errors "github.com/spounge-ai/persistor/internal/errors"
)

const builderInitialCap = 128

var builderPool = sync.Pool{
	New: func() any {
		sb := &strings.Builder{}
		sb.Grow(builderInitialCap)
		return sb
	},
}

// sqlQuery accumulates SQL text and its positional arguments.
type sqlQuery struct {
	sb   *strings.Builder
	args []any
}

func newSQLQuery() *sqlQuery {
	return &sqlQuery{sb: builderPool.Get().(*strings.Builder)}
}

func (q *sqlQuery) write(parts ...string) *sqlQuery {
	for _, p := range parts {
		q.sb.WriteString(p)
	}
	return q
}

// arg binds v and returns its placeholder.
func (q *sqlQuery) arg(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

// done returns the statement and hands the builder back to the pool.
func (q *sqlQuery) done() (string, []any) {
	s := q.sb.String()
	q.sb.Reset()
	builderPool.Put(q.sb)
	q.sb = nil
	return s, q.args
}

// containment encodes a matcher as a jsonb containment document. Only plain
// equality is expressible this way, so any operator key is rejected. A nested
// object value matches any stored object that contains it.
func containment(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return nil, nil
	}
	if op, ok := findOperator(m); ok {
		return nil, fmt.Errorf("%w: operator %s is not supported by the postgres backend", app_errors.ErrUnsupported, op)
	}
	expanded := domain.Document{}
	for k, v := range m {
		setPath(expanded, k, v)
	}
	raw, err := json.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("invalid matcher: %w", err)
	}
	return raw, nil
}

func findOperator(v any) (string, bool) {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			if strings.HasPrefix(k, "$") {
				return k, true
			}
			if op, ok := findOperator(e); ok {
				return op, true
			}
		}
	case domain.Document:
		return findOperator(map[string]any(t))
	case []any:
		for _, e := range t {
			if op, ok := findOperator(e); ok {
				return op, true
			}
		}
	}
	return "", false
}

// where writes the clause shared by every statement over one collection.
func (q *sqlQuery) where(collection string, matcher map[string]any) error {
	filter, err := containment(matcher)
	if err != nil {
		return err
	}
	q.write(" WHERE collection = ", q.arg(collection))
	if filter != nil {
		q.write(" AND body @> ", q.arg(filter), "::jsonb")
	}
	return nil
}

func buildSelect(collection string, query domain.Query) (string, []any, error) {
	q := newSQLQuery()
	q.write("SELECT body FROM documents")
	if err := q.where(collection, query.Matcher); err != nil {
		q.done()
		return "", nil, err
	}
	q.write(" ORDER BY ")
	for _, f := range query.Sort {
		q.write("body #> ", q.arg(strings.Split(f.Key, ".")), "::text[]")
		if f.Descending {
			q.write(" DESC")
		}
		q.write(", ")
	}
	q.write("seq")
	if query.Skip > 0 {
		q.write(" OFFSET ", q.arg(query.Skip))
	}
	if query.Limit > 0 {
		q.write(" LIMIT ", q.arg(query.Limit))
	}
	s, args := q.done()
	return s, args, nil
}

// buildLockMatches selects the rows an update will rewrite, locking them.
func buildLockMatches(collection string, criteria map[string]any, multi bool) (string, []any, error) {
	q := newSQLQuery()
	q.write("SELECT body FROM documents")
	if err := q.where(collection, criteria); err != nil {
		q.done()
		return "", nil, err
	}
	q.write(" ORDER BY seq")
	if !multi {
		q.write(" LIMIT 1")
	}
	q.write(" FOR UPDATE")
	s, args := q.done()
	return s, args, nil
}

func buildCount(collection string, matcher map[string]any) (string, []any, error) {
	q := newSQLQuery()
	q.write("SELECT count(*) FROM documents")
	if err := q.where(collection, matcher); err != nil {
		q.done()
		return "", nil, err
	}
	s, args := q.done()
	return s, args, nil
}

func buildDelete(collection string, matcher map[string]any) (string, []any, error) {
	q := newSQLQuery()
	q.write("DELETE FROM documents")
	if err := q.where(collection, matcher); err != nil {
		q.done()
		return "", nil, err
	}
	s, args := q.done()
	return s, args, nil
}

// encodeJSON marshals a document or id for a jsonb parameter.
func encodeJSON(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("document is not representable as JSON: %w", err)
	}
	return raw, nil
}

func decodeBody(raw []byte) (domain.Document, error) {
	var doc domain.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("corrupt stored document: %w", err)
	}
	return doc, nil
}
