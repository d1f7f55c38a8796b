package kv

import (
	"encoding/json"
	"errors"
	"testing"
)

type item struct {
	Name string `json:"name"`
}

func TestLoadList(t *testing.T) {
	testCases := []struct {
		name     string
		stored   *string
		expected int
	}{
		{name: "absent key", stored: nil, expected: 0},
		{name: "empty string", stored: strPtr(""), expected: 0},
		{name: "malformed json", stored: strPtr("{not json"), expected: 0},
		{name: "wrong shape", stored: strPtr(`{"name":"x"}`), expected: 0},
		{name: "null", stored: strPtr("null"), expected: 0},
		{name: "two items", stored: strPtr(`[{"name":"a"},{"name":"b"}]`), expected: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewMemory()
			if tc.stored != nil {
				s.Set("list", *tc.stored)
			}
			list, err := LoadList[item](s, "list")
			if err != nil {
				t.Fatalf("LoadList() returned an unexpected error: %v", err)
			}
			if list == nil {
				t.Fatal("Expected a non-nil list")
			}
			if len(list) != tc.expected {
				t.Errorf("Expected %d items, but got %d", tc.expected, len(list))
			}
		})
	}
}

func TestDecodeReturnsParseError(t *testing.T) {
	_, err := Decode[[]item]("list", "oops")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected a *ParseError, but got %T", err)
	}
	if pe.Key != "list" {
		t.Errorf("Expected key 'list', but got %q", pe.Key)
	}
}

func TestSnapshotSkipsAndEncodes(t *testing.T) {
	s := NewMemory()
	s.Set("auth-token", "secret")
	s.Set("vocab_book", `[{"name":"a"}]`)
	s.Set("plain", "hello world")
	s.Set("empty", "")

	snap, err := Snapshot(s, func(k string) bool { return k == "auth-token" })
	if err != nil {
		t.Fatalf("Snapshot() returned an unexpected error: %v", err)
	}
	if _, ok := snap["auth-token"]; ok {
		t.Error("Expected skipped key to be absent from snapshot")
	}
	if string(snap["vocab_book"]) != `[{"name":"a"}]` {
		t.Errorf("Expected JSON value verbatim, but got %s", snap["vocab_book"])
	}
	if string(snap["plain"]) != `"hello world"` {
		t.Errorf("Expected raw string to be JSON-quoted, but got %s", snap["plain"])
	}
	if string(snap["empty"]) != `""` {
		t.Errorf("Expected empty string to be JSON-quoted, but got %s", snap["empty"])
	}
}

func TestWriteValue(t *testing.T) {
	testCases := []struct {
		name     string
		value    string
		expected string
	}{
		{name: "string is stored unquoted", value: `"hello"`, expected: "hello"},
		{name: "array is stored as json", value: `[1,2]`, expected: "[1,2]"},
		{name: "number is stored as json", value: `3`, expected: "3"},
		{name: "null is stored as json", value: `null`, expected: "null"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewMemory()
			if err := WriteValue(s, "k", json.RawMessage(tc.value)); err != nil {
				t.Fatalf("WriteValue() returned an unexpected error: %v", err)
			}
			got, _, _ := s.Get("k")
			if got != tc.expected {
				t.Errorf("Expected %q, but got %q", tc.expected, got)
			}
		})
	}
}

func strPtr(s string) *string { return &s }
