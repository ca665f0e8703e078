package domain

// Status values carried by every reply.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusMoreExist = "more-exist"
)

// Reply field names.
const (
	FieldStatus      = "status"
	FieldMessage     = "message"
	FieldResults     = "results"
	FieldResult      = "result"
	FieldNumber      = "number"
	FieldCount       = "count"
	FieldCollections = "collections"
	FieldStats       = "stats"
)

// Reply is the envelope returned for every request.
type Reply map[string]any

// Status returns the reply status, or "" if it is missing.
func (r Reply) Status() string {
	s, _ := r[FieldStatus].(string)
	return s
}

// Message returns the error message of a failed reply.
func (r Reply) Message() string {
	s, _ := r[FieldMessage].(string)
	return s
}

// OK reports whether the reply succeeded, including intermediate batch pages.
func (r Reply) OK() bool {
	s := r.Status()
	return s == StatusOK || s == StatusMoreExist
}

// Results returns the documents of a find reply.
func (r Reply) Results() []Document {
	switch v := r[FieldResults].(type) {
	case []Document:
		return v
	case []any:
		out := make([]Document, 0, len(v))
		for _, e := range v {
			switch d := e.(type) {
			case Document:
				out = append(out, d)
			case map[string]any:
				out = append(out, Document(d))
			}
		}
		return out
	default:
		return nil
	}
}

// Result returns the single-document payload of findone and command replies.
func (r Reply) Result() Document {
	switch v := r[FieldResult].(type) {
	case Document:
		return v
	case map[string]any:
		return Document(v)
	default:
		return nil
	}
}
