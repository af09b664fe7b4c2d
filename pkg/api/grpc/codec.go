package grpc

import (
	"encoding/json"
	"fmt"
)

// CodecName is the content-subtype of the JSON codec
const CodecName = "json"

// JSONCodec encodes gRPC messages as JSON
type JSONCodec struct{}

// Marshal encodes v
func (JSONCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

// Unmarshal decodes data into v
func (JSONCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return nil
}

// Name returns the codec name
func (JSONCodec) Name() string {
	return CodecName
}
