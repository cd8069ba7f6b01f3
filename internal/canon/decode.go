package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Unmarshal parses canonical-compatible JSON with strict validation.
// Floats and nulls are rejected; numbers decode as int64. Composite
// values come back as map[string]any and []any, so a decoded value can
// be handed straight back to Marshal.
func Unmarshal(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	// Reject trailing garbage after the first value.
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}

	return convertValue(raw)
}

// UnmarshalObject is Unmarshal restricted to a top-level JSON object.
// Action payloads are always objects, so this is the decode entry point
// the codec uses.
func UnmarshalObject(data []byte) (map[string]any, error) {
	v, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", v)
	}
	return obj, nil
}

// convertValue recursively rewrites decoded JSON into canonical value
// types. Rejects null and floats.
func convertValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden: only string, int, bool, array, object allowed")
	case bool:
		return val, nil
	case string:
		return val, nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are forbidden: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return n, nil
	case []any:
		arr := make([]any, len(val))
		for i, elem := range val {
			conv, err := convertValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(map[string]any, len(val))
		for k, elem := range val {
			conv, err := convertValue(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
