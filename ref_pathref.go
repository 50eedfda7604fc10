package formguard

import (
	"strings"
)

// PathRef builds JSON Pointer paths for controls in a chain-safe way.
type PathRef interface {
	Field(name string) PathRef
	Pointer() string
	Issue(code, msg string, kv ...any) Issue
}

// RootPath returns the PathRef of a top-level record.
func RootPath() PathRef { return &pathRef{parts: nil} }

type pathRef struct {
	parts []string
}

func (p *pathRef) Field(name string) PathRef {
	if name == "" {
		return p
	}
	// escape '~' -> '~0', '/' -> '~1' per RFC6901
	esc := strings.ReplaceAll(strings.ReplaceAll(name, "~", "~0"), "/", "~1")
	return &pathRef{parts: append(append([]string{}, p.parts...), esc)}
}

func (p *pathRef) Pointer() string {
	if len(p.parts) == 0 {
		return "/"
	}
	return "/" + strings.Join(p.parts, "/")
}

func (p *pathRef) Issue(code, msg string, kv ...any) Issue {
	it := NewIssue(code, msg, kv...)
	it.Path = p.Pointer()
	return *it
}

// splitName splits a dotted control path ("settings.mobile") into segments.
func splitName(name string) []string {
	if name == "" {
		return nil
	}
	return strings.Split(name, ".")
}
