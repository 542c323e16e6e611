// Package rpc defines the JSON wire contract between the edge, the workers
// and the gateways: an encoding.Codec, the wire structs for every
// operation, and hand-maintained service descriptors with typed clients.
package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype clients select with
// grpc.CallContentSubtype and servers force with grpc.ForceServerCodec.
const CodecName = "json"

// JSONCodec marshals wire messages as plain JSON.
type JSONCodec struct{}

// Name implements encoding.Codec.
func (JSONCodec) Name() string { return CodecName }

// Marshal implements encoding.Codec.
func (JSONCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("op=rpc.marshal: %w", err)
	}
	return b, nil
}

// Unmarshal implements encoding.Codec.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("op=rpc.unmarshal: %w", err)
	}
	return nil
}

func init() {
	encoding.RegisterCodec(JSONCodec{})
}
