package persistence

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/spounge-ai/persistor/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// writeConcernFor maps the symbolic write concern names clients send.
// Empty and unknown names return nil, which keeps the collection default.
func writeConcernFor(name string) *writeconcern.WriteConcern {
	switch strings.ToUpper(name) {
	case "SAFE", "ACKNOWLEDGED":
		return writeconcern.W1()
	case "NORMAL", "UNACKNOWLEDGED", "NONE":
		return writeconcern.Unacknowledged()
	case "JOURNAL_SAFE", "JOURNALED", "FSYNC_SAFE", "FSYNCED":
		return writeconcern.Journaled()
	case "MAJORITY", "REPLICAS_SAFE", "REPLICA_ACKNOWLEDGED":
		return writeconcern.Majority()
	default:
		return nil
	}
}

// normalizeDocument converts a decoded BSON document into JSON-compatible values.
func normalizeDocument(d bson.D) domain.Document {
	out := make(domain.Document, len(d))
	for _, e := range d {
		out[e.Key] = normalizeValue(e.Value)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return nil
	case bson.D:
		return map[string]any(normalizeDocument(t))
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeValue(e)
		}
		return out
	case bson.A:
		return normalizeSlice(t)
	case []any:
		return normalizeSlice(t)
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case primitive.Timestamp:
		return map[string]any{"t": int64(t.T), "i": int64(t.I)}
	case primitive.Decimal128:
		return t.String()
	case primitive.Binary:
		return base64.StdEncoding.EncodeToString(t.Data)
	case []byte:
		return base64.StdEncoding.EncodeToString(t)
	case primitive.Regex:
		return t.Pattern
	case primitive.Symbol:
		return string(t)
	case primitive.JavaScript:
		return string(t)
	case primitive.MinKey, primitive.MaxKey:
		return fmt.Sprint(t)
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case int64, float64, string, bool:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func normalizeSlice(in []any) []any {
	out := make([]any, len(in))
	for i, e := range in {
		out[i] = normalizeValue(e)
	}
	return out
}

// sortDocument turns sort fields into an ordered BSON sort specification.
func sortDocument(fields []domain.SortField) bson.D {
	if len(fields) == 0 {
		return nil
	}
	d := make(bson.D, 0, len(fields))
	for _, f := range fields {
		dir := 1
		if f.Descending {
			dir = -1
		}
		d = append(d, bson.E{Key: f.Key, Value: dir})
	}
	return d
}

// filterDocument passes a matcher to the driver, treating nil as match-all.
func filterDocument(m map[string]any) any {
	if m == nil {
		return bson.D{}
	}
	return map[string]any(m)
}

// isOperatorUpdate reports whether objNew uses update operators rather than
// being a replacement document.
func isOperatorUpdate(objNew domain.Document) bool {
	for k := range objNew {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

// commandDocument parses a command into an ordered BSON document.
func commandDocument(cmd domain.Command) (bson.D, error) {
	raw, err := cmd.JSON()
	if err != nil {
		return nil, err
	}
	var d bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &d); err != nil {
		return nil, fmt.Errorf("invalid command document: %w", err)
	}
	if len(d) == 0 {
		return nil, fmt.Errorf("command is empty")
	}
	return d, nil
}
