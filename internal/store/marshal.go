package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/tracemon/internal/ir"
)

// marshalArgs converts an Object to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalArgs(args ir.Object) (string, error) {
	if args == nil {
		args = ir.Object{}
	}
	data, err := ir.MarshalCanonical(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(data), nil
}

// unmarshalArgs parses canonical JSON TEXT to an Object.
// ir.Object.UnmarshalJSON keeps large integers exact and rejects floats.
func unmarshalArgs(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	return obj, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
