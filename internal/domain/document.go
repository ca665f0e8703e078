package domain

import "sort"

// IDField is the key under which documents carry their identifier.
const IDField = "_id"

// Document is an opaque mapping of string keys to JSON-compatible values.
type Document map[string]any

// Matcher is a filter predicate. An empty Matcher selects every document.
type Matcher map[string]any

// ID returns the document identifier and whether one is present.
func (d Document) ID() (any, bool) {
	id, ok := d[IDField]
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

// SortField is one key of a sort specification.
type SortField struct {
	Key        string
	Descending bool
}

// SortSpec converts a sort mapping such as {"age": 1, "name": -1}
// into fields ordered by key name. Any negative number sorts descending.
func SortSpec(m map[string]any) []SortField {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]SortField, 0, len(keys))
	for _, k := range keys {
		desc := false
		if n, ok := ToFloat(m[k]); ok && n < 0 {
			desc = true
		}
		fields = append(fields, SortField{Key: k, Descending: desc})
	}
	return fields
}

// ToFloat widens any Go numeric value to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Document:
		return Document(cloneMap(t))
	case Matcher:
		return Matcher(cloneMap(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []Document:
		out := make([]Document, len(t))
		for i, e := range t {
			out[i] = e.Clone()
		}
		return out
	default:
		return v
	}
}
