// Package json is the single place the module chooses its JSON implementation.
package json

import jsoniter "github.com/json-iterator/go"

var handler = jsoniter.ConfigCompatibleWithStandardLibrary

// Number is a JSON number literal kept as text.
type Number = jsoniter.Number

// Marshal converts object as bytes
func Marshal(v any) ([]byte, error) {
	return handler.Marshal(v)
}

// Unmarshal decodes object from bytes
func Unmarshal(data []byte, v any) error {
	return handler.Unmarshal(data, v)
}

// MarshalString encodes v and returns it as a string, for TEXT columns.
func MarshalString(v any) (string, error) {
	b, err := handler.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalString decodes a TEXT column. Empty input leaves v untouched.
func UnmarshalString(s string, v any) error {
	if s == "" {
		return nil
	}
	return handler.UnmarshalFromString(s, v)
}
