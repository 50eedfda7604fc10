package formguard

import (
	"errors"
	"fmt"
	"strings"
)

// Issue codes (exported consts for IDE completion and type safety by convention)
const (
	CodeRequired  = "required"
	CodePattern   = "pattern"
	CodeMinLength = "minlength"
	CodeMaxLength = "maxlength"
	CodeEmail     = "email"
	// Availability checks (remote uniqueness/existence)
	CodeTaken    = "taken"
	CodeNotFound = "notFound"
	// CodeCheckFailed is only produced by availability rules that opt into
	// distinguishing transport failures from genuine results.
	CodeCheckFailed = "checkFailed"
	// CodePending marks a field whose async checks had not resolved when the
	// record's issues were collected (see Record.Err).
	CodePending = "pending"
)

// Issue represents a single validation entry.
type Issue struct {
	Path    string // JSON Pointer of the field (for example: /settings/mobile).
	Code    string // One of the codes listed above.
	Message string
	Cause   error // Optional: underlying error.
	// Params carries structured parameters (e.g., {"min":6, "got":2})
	// for i18n and observability.
	Params map[string]any
	// Rule optionally records the rule name that produced this issue.
	Rule string
}

// Issues is a collection of validation errors that implements error.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	n := len(iss)
	lim := n
	if lim > maxShown {
		lim = maxShown
	}
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		it := iss[i]
		// e.g. taken at /username
		fmt.Fprintf(b, "%s at %s", it.Code, it.Path)
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// Has reports whether any issue carries the given code.
func (iss Issues) Has(code string) bool {
	for _, it := range iss {
		if it.Code == code {
			return true
		}
	}
	return false
}

// First returns the first issue, which presentation layers typically render
// as the field's inline message.
func (iss Issues) First() (Issue, bool) {
	if len(iss) == 0 {
		return Issue{}, false
	}
	return iss[0], true
}

// AppendIssues appends issues to the destination, initializing the slice when
// needed.
func AppendIssues(dst Issues, more ...Issue) Issues {
	if dst == nil {
		dst = Issues{}
	}
	dst = append(dst, more...)
	return dst
}

// AsIssues extracts Issues from an error using errors.As internally.
func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}

// NewIssue builds an Issue with code and message; kv pairs become Params.
func NewIssue(code, msg string, kv ...any) *Issue {
	it := &Issue{Code: code, Message: msg}
	if len(kv) > 1 {
		it.Params = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			it.Params[fmt.Sprint(kv[i])] = kv[i+1]
		}
	}
	return it
}
