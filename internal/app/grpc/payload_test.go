package grpc

import (
	"testing"

	"github.com/spounge-ai/persistor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestPayloadConversion(t *testing.T) {
	in, err := structpb.NewStruct(map[string]any{"action": "count", "collection": "c"})
	require.NoError(t, err)

	body, err := toBody(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"count","collection":"c"}`, string(body))

	out, err := toStruct(domain.Reply{
		domain.FieldStatus:  domain.StatusOK,
		domain.FieldResults: []domain.Document{{"n": int64(3)}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"status":  "ok",
		"results": []any{map[string]any{"n": 3.0}},
	}, out.AsMap())

	_, err = toStruct([]any{1})
	assert.Error(t, err)
	_, err = toBody(nil)
	assert.Error(t, err)
}
