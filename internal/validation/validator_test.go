package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/spounge-ai/persistor/internal/domain"
	app_errors "github.com/spounge-ai/persistor/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *RequestValidator {
	t.Helper()
	rv, err := NewRequestValidator()
	require.NoError(t, err)
	return rv
}

func TestDecode_Variants(t *testing.T) {
	rv := newValidator(t)

	tests := []struct {
		name string
		body any
		want domain.Request
	}{
		{
			name: "save with document",
			body: map[string]any{"action": "save", "collection": "testcoll", "document": map[string]any{"name": "joe bloggs"}},
			want: domain.SaveRequest{Collection: "testcoll", Document: domain.Document{"name": "joe bloggs"}},
		},
		{
			name: "save without document is permissive",
			body: map[string]any{"action": "save", "collection": "testcoll"},
			want: domain.SaveRequest{Collection: "testcoll", Document: domain.Document{}},
		},
		{
			name: "find defaults matcher",
			body: map[string]any{"action": "find", "collection": "testcoll"},
			want: domain.FindRequest{Collection: "testcoll", Matcher: domain.Matcher{}},
		},
		{
			name: "find with paging",
			body: map[string]any{
				"action": "find", "collection": "testcoll", "matcher": map[string]any{},
				"skip": 10.0, "limit": 12, "batch_size": 5, "timeout": 2500, "sort": map[string]any{"age": 1},
			},
			want: domain.FindRequest{
				Collection: "testcoll", Matcher: domain.Matcher{}, Sort: map[string]any{"age": 1},
				Skip: 10, Limit: 12, BatchSize: 5, Timeout: 2500 * time.Millisecond,
			},
		},
		{
			name: "delete defaults matcher to delete-all",
			body: map[string]any{"action": "delete", "collection": "testcoll", "writeConcern": "NORMAL"},
			want: domain.DeleteRequest{Collection: "testcoll", Matcher: domain.Matcher{}, WriteConcern: "NORMAL"},
		},
		{
			name: "command as text needs no collection",
			body: map[string]any{"action": "command", "command": "{ping:1}"},
			want: domain.CommandRequest{Command: domain.Command{Text: "{ping:1}"}},
		},
		{
			name: "command as mapping",
			body: map[string]any{"action": "command", "command": map[string]any{"ping": 1}},
			want: domain.CommandRequest{Command: domain.Command{Doc: domain.Document{"ping": 1}}},
		},
		{
			name: "update",
			body: map[string]any{
				"action": "update", "collection": "testcoll",
				"criteria": map[string]any{"name": "tim"}, "objNew": map[string]any{"$set": map[string]any{"age": 41}},
				"multi": true,
			},
			want: domain.UpdateRequest{
				Collection: "testcoll", Criteria: domain.Matcher{"name": "tim"},
				ObjNew: domain.Document{"$set": map[string]any{"age": 41}}, Multi: true,
			},
		},
		{
			name: "getCollections",
			body: map[string]any{"action": "getCollections"},
			want: domain.GetCollectionsRequest{},
		},
		{
			name: "raw json body",
			body: []byte(`{"action":"count","collection":"testcoll","matcher":{"name":"tim"}}`),
			want: domain.CountRequest{Collection: "testcoll", Matcher: domain.Matcher{"name": "tim"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rv.Decode(tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_ValidationErrors(t *testing.T) {
	rv := newValidator(t)

	tests := []struct {
		name    string
		body    map[string]any
		wantMsg string
	}{
		{"missing action", map[string]any{"collection": "testcoll"}, "action must be specified"},
		{"empty action", map[string]any{"action": ""}, "action must be specified"},
		{"non-string action", map[string]any{"action": 3}, "action must be specified"},
		{"unknown action", map[string]any{"action": "explode"}, "invalid action: explode"},
		{"save without collection", map[string]any{"action": "save"}, "collection must be specified"},
		{"find without collection", map[string]any{"action": "find"}, "collection must be specified"},
		{"delete without collection", map[string]any{"action": "delete"}, "collection must be specified"},
		{"bad collection name", map[string]any{"action": "find", "collection": "a$b"}, `invalid collection name: "a$b"`},
		{"document not an object", map[string]any{"action": "save", "collection": "c", "document": "nope"}, "document must be an object"},
		{"matcher not an object", map[string]any{"action": "find", "collection": "c", "matcher": []any{}}, "matcher must be an object"},
		{"fractional limit", map[string]any{"action": "find", "collection": "c", "limit": 1.5}, "limit must be an integer"},
		{"negative skip", map[string]any{"action": "find", "collection": "c", "skip": -1}, "skip must not be negative"},
		{"missing command", map[string]any{"action": "command"}, "command must be specified"},
		{"command wrong type", map[string]any{"action": "command", "command": 1}, "command must be a string or an object"},
		{"update without objNew", map[string]any{"action": "update", "collection": "c"}, "objNew must be specified"},
		{"upsert not bool", map[string]any{"action": "update", "collection": "c", "objNew": map[string]any{}, "upsert": "yes"}, "upsert must be a boolean"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rv.Decode(tt.body)
			require.Error(t, err)
			assert.True(t, errors.Is(err, app_errors.ErrValidation), "expected validation error, got %v", err)
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestDecode_DecodeErrors(t *testing.T) {
	rv := newValidator(t)

	for name, body := range map[string]any{
		"nil":         nil,
		"string":      "save everything",
		"broken json": []byte(`{"action":`),
		"json array":  []byte(`[1,2,3]`),
		"json null":   []byte(`null`),
		"number":      42,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := rv.Decode(body)
			require.Error(t, err)
			assert.True(t, errors.Is(err, app_errors.ErrDecode), "expected decode error, got %v", err)
			assert.NotEmpty(t, err.Error())
		})
	}
}
