// Package jsonbody decodes submitted JSON objects, rejecting duplicate keys
// that a plain map decode would silently collapse.
package jsonbody

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	gojson "github.com/goccy/go-json"

	"github.com/networked-ai/formguard"
)

var (
	// ErrDuplicateKey is wrapped by *DuplicateKeyError.
	ErrDuplicateKey = errors.New("jsonbody: duplicate key")
	// ErrNotObject is returned when the document is not a JSON object.
	ErrNotObject = errors.New("jsonbody: document must be a JSON object")
)

// DuplicateKeyError reports the first repeated member key.
type DuplicateKeyError struct {
	// Path is the JSON Pointer of the repeated member.
	Path string
	Key  string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("jsonbody: duplicate key %q at %s", e.Key, e.Path)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// DecodeObject decodes data into a map after checking that no object in the
// document repeats a key.
func DecodeObject(data []byte) (map[string]any, error) {
	if err := checkDuplicates(data); err != nil {
		return nil, err
	}
	var v any
	if err := gojson.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("jsonbody: decode: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return m, nil
}

type frame struct {
	object       bool
	keys         map[string]struct{}
	expectingKey bool
	key          string
	index        int
}

func checkDuplicates(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var stack []frame

	valueDone := func() {
		if len(stack) == 0 {
			return
		}
		top := &stack[len(stack)-1]
		if top.object {
			top.expectingKey = true
		} else {
			top.index++
		}
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("jsonbody: decode: %w", err)
		}
		switch v := tok.(type) {
		case json.Delim:
			switch v {
			case '{':
				stack = append(stack, frame{object: true, keys: map[string]struct{}{}, expectingKey: true})
			case '[':
				stack = append(stack, frame{})
			case '}', ']':
				stack = stack[:len(stack)-1]
				valueDone()
			}
		case string:
			if n := len(stack); n > 0 && stack[n-1].object && stack[n-1].expectingKey {
				top := &stack[n-1]
				if _, dup := top.keys[v]; dup {
					return &DuplicateKeyError{Path: pointer(stack[:n-1]).Field(v).Pointer(), Key: v}
				}
				top.keys[v] = struct{}{}
				top.key = v
				top.expectingKey = false
				continue
			}
			valueDone()
		default:
			valueDone()
		}
	}
}

// pointer renders the position of the innermost of frames inside its parents.
func pointer(frames []frame) formguard.PathRef {
	p := formguard.RootPath()
	for _, f := range frames {
		if f.object {
			p = p.Field(f.key)
		} else {
			p = p.Field(strconv.Itoa(f.index))
		}
	}
	return p
}
