package jsonbody

import (
	"errors"
	"testing"
)

func TestDecodeObject(t *testing.T) {
	m, err := DecodeObject([]byte(`{"username":"ada","settings":{"tags":["a","b"],"theme":"dark"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m["username"] != "ada" {
		t.Fatalf("unexpected map %v", m)
	}
	if s, ok := m["settings"].(map[string]any); !ok || s["theme"] != "dark" {
		t.Fatalf("nested objects must decode to maps, got %T", m["settings"])
	}
}

func TestDecodeObject_DuplicateKeys(t *testing.T) {
	tests := []struct {
		in   string
		path string
	}{
		{`{"a":1,"a":2}`, "/a"},
		{`{"s":{"x":1,"x":2}}`, "/s/x"},
		{`{"list":[{"k":1},{"k":1,"k":2}]}`, "/list/1/k"},
		{`{"a/b":{"c":[],"c":{}}}`, "/a~1b/c"},
	}
	for _, tt := range tests {
		_, err := DecodeObject([]byte(tt.in))
		var de *DuplicateKeyError
		if !errors.As(err, &de) || !errors.Is(err, ErrDuplicateKey) {
			t.Fatalf("%s: expected duplicate key error, got %v", tt.in, err)
		}
		if de.Path != tt.path {
			t.Fatalf("%s: path = %q, want %q", tt.in, de.Path, tt.path)
		}
	}
}

func TestDecodeObject_SameKeyInSiblingsIsFine(t *testing.T) {
	if _, err := DecodeObject([]byte(`{"a":{"k":1},"b":{"k":2},"c":[{"k":1},{"k":2}]}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeObject_Rejects(t *testing.T) {
	if _, err := DecodeObject([]byte(`[1,2]`)); !errors.Is(err, ErrNotObject) {
		t.Fatalf("expected ErrNotObject, got %v", err)
	}
	if _, err := DecodeObject([]byte(`{"a":`)); err == nil {
		t.Fatalf("expected a syntax error")
	}
}
