package jsonx

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// ToDynamic converts any Go value into its dynamic JSON representation:
// objects become map[string]any, arrays []any, numbers float64.
func ToDynamic(val any) (any, error) {
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	var result any
	if err = json.Unmarshal(b, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Convert recovers a value of type T from an opaque payload.
// Values that already are a T are returned as is; anything else goes through
// a JSON round trip, which is how payloads look after crossing a transport.
func Convert[T any](val any) (T, error) {
	if v, ok := val.(T); ok {
		return v, nil
	}
	var result T
	if val == nil {
		return result, nil
	}
	b, err := json.Marshal(val)
	if err != nil {
		return result, fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("decode payload into %T: %w", result, err)
	}
	return result, nil
}
