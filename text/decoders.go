package text

import (
	"encoding/json"
	"strconv"
)

// Built-in decoders for use with RegisterFlag.

// DecodeString returns the payload as a string.
func DecodeString(data []byte) (any, error) {
	return string(data), nil
}

// DecodeBytes returns the payload unchanged.
func DecodeBytes(data []byte) (any, error) {
	return data, nil
}

// DecodeInt parses the payload as a base 10 int64.
func DecodeInt(data []byte) (any, error) {
	return strconv.ParseInt(string(data), 10, 64)
}

// DecodeUint parses the payload as a base 10 uint64.
func DecodeUint(data []byte) (any, error) {
	return strconv.ParseUint(string(data), 10, 64)
}

// DecodeFloat parses the payload as a float64.
func DecodeFloat(data []byte) (any, error) {
	return strconv.ParseFloat(string(data), 64)
}

// DecodeBool parses the payload with strconv.ParseBool.
func DecodeBool(data []byte) (any, error) {
	return strconv.ParseBool(string(data))
}

// DecodeJSON unmarshals the payload into an untyped value
// (map[string]any, []any, string, float64, bool or nil).
func DecodeJSON(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeJSONInto returns a decoder unmarshalling payloads into a new T.
func DecodeJSONInto[T any]() Decoder {
	return func(data []byte) (any, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
