package grpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// toBody renders a Struct as the JSON body the bus carries.
func toBody(s *structpb.Struct) (json.RawMessage, error) {
	if s == nil {
		return nil, fmt.Errorf("request is empty")
	}
	raw, err := protojson.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return raw, nil
}

// toStruct converts any JSON-encodable reply body into a Struct.
func toStruct(body any) (*structpb.Struct, error) {
	var raw []byte
	switch b := body.(type) {
	case json.RawMessage:
		raw = b
	case []byte:
		raw = b
	default:
		var err error
		if raw, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode reply: %w", err)
		}
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("reply is not a JSON object: %w", err)
	}
	return out, nil
}
