package store

import (
	"fmt"

	"github.com/roach88/formsync/internal/ir"
)

// marshalValue converts a Value to its tagged canonical JSON TEXT.
// Tagging keeps dates distinguishable from text after a round trip.
func marshalValue(v ir.Value) (string, error) {
	data, err := ir.EncodeValue(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// unmarshalValue parses TEXT written by marshalValue.
func unmarshalValue(data string) (ir.Value, error) {
	if data == "" {
		return ir.Null{}, nil
	}
	v, err := ir.DecodeValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}
