// File: codec/json.go
// Package codec provides the structured-value codecs used for message payloads.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/momentics/wsgate/api"
)

// JSON encodes structpb values as compact JSON text.
type JSON struct{}

var _ api.Codec = JSON{}

var (
	marshal   = protojson.MarshalOptions{}
	unmarshal = protojson.UnmarshalOptions{}
)

func (JSON) Name() string { return "json" }

// Encode renders v as JSON. A nil value encodes as null.
func (JSON) Encode(v *structpb.Value) ([]byte, error) {
	if v == nil {
		v = structpb.NewNullValue()
	}
	b, err := marshal.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	return b, nil
}

// Decode parses any JSON document into a value.
func (JSON) Decode(data []byte) (*structpb.Value, error) {
	v := &structpb.Value{}
	if err := unmarshal.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	return v, nil
}
