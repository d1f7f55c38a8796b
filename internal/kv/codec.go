package kv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
)

// ParseError reports a stored value that is not the JSON shape its reader expects.
type ParseError struct {
	Key string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed value under key %q: %v", e.Key, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Decode parses raw as JSON into a T.
func Decode[T any](key, raw string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, &ParseError{Key: key, Err: err}
	}
	return v, nil
}

// LoadList reads the JSON array stored under key.
//
// An absent key yields an empty list. A malformed value also yields an empty list:
// the collection is treated as never written, and the next save replaces it. The
// parse failure is logged. Only storage failures are returned as errors.
func LoadList[T any](s Store, key string) ([]T, error) {
	raw, ok, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return []T{}, nil
	}
	list, err := Decode[[]T](key, raw)
	if err != nil {
		slog.Warn("discarding malformed stored list", "key", key, "error", err)
		return []T{}, nil
	}
	if list == nil {
		list = []T{}
	}
	return list, nil
}

// SaveJSON stores v under key as JSON.
func SaveJSON(s Store, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode value for key %s: %w", key, err)
	}
	return s.Set(key, string(b))
}

// Snapshot returns every key not rejected by skip, with values decoded for transport.
// Values that are valid JSON are passed through verbatim; anything else is kept as a
// raw string.
func Snapshot(s Store, skip func(key string) bool) (map[string]json.RawMessage, error) {
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		if skip != nil && skip(key) {
			continue
		}
		raw, ok, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out[key] = EncodeValue(raw)
	}
	return out, nil
}

// EncodeValue turns a stored string into a JSON value: valid JSON is kept as is,
// anything else becomes a JSON string.
func EncodeValue(raw string) json.RawMessage {
	if raw != "" && json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	b, _ := json.Marshal(raw)
	return b
}

// WriteValue stores a transported JSON value under key. JSON strings are stored
// unquoted; every other value is stored as its JSON text.
func WriteValue(s Store, key string, value json.RawMessage) error {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var str string
		if err := json.Unmarshal(trimmed, &str); err != nil {
			return &ParseError{Key: key, Err: err}
		}
		return s.Set(key, str)
	}
	return s.Set(key, string(trimmed))
}
