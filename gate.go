package formguard

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/networked-ai/formguard/internal/logger"
)

// DefaultGateTimeout bounds how long a gate waits for pending async checks.
const DefaultGateTimeout = 5 * time.Second

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateTimeout sets the bound on waiting for pending fields. Non-positive
// values keep the default.
func WithGateTimeout(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithGateLogger sets the logger used for timeouts and unknown names.
func WithGateLogger(l Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

// Gate decides whether a submit action may proceed. Concurrent calls for the
// same record and field names share one evaluation.
type Gate struct {
	timeout time.Duration
	log     Logger
	flights singleflight.Group
}

// NewGate returns a Gate with a 5 second wait bound and a nop logger.
func NewGate(opts ...GateOption) *Gate {
	g := &Gate{timeout: DefaultGateTimeout, log: logger.Nop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var defaultGate = NewGate()

// ValidateFields runs the default gate. See (*Gate).ValidateFields.
func ValidateFields(ctx context.Context, rec *Record, names ...string) bool {
	return defaultGate.ValidateFields(ctx, rec, names...)
}

// ValidateFields touches and re-evaluates the named controls (sub-records
// recursively, skipping disabled fields), waits for pending async checks up
// to the gate's timeout, then reports whether every named control is
// satisfied. A field is satisfied when it is valid, or disabled while holding
// a non-empty value. Fields still pending when the wait ends are not
// satisfied, and unknown names fail. Waiting ends early once rec is closed.
//
// When calls are coalesced, the context of the first caller bounds the wait.
func (g *Gate) ValidateFields(ctx context.Context, rec *Record, names ...string) bool {
	key := rec.ID() + "\x00" + strings.Join(names, "\x00")
	v, _, _ := g.flights.Do(key, func() (any, error) {
		return g.validate(ctx, rec, names), nil
	})
	ok, _ := v.(bool)
	return ok
}

func (g *Gate) validate(ctx context.Context, rec *Record, names []string) bool {
	targets := make([]Control, len(names))
	var watch []*Field
	for i, name := range names {
		c := rec.Get(name)
		targets[i] = c
		switch c := c.(type) {
		case nil:
			g.log.Warnw("gate: unknown control", "record", rec.ID(), "name", name)
		case *Field:
			c.MarkTouched()
			c.Revalidate()
			watch = append(watch, c)
		case *Record:
			for _, f := range c.fieldsDeep() {
				f.MarkTouched()
				if !f.Disabled() {
					f.Revalidate()
				}
				watch = append(watch, f)
			}
		}
	}

	wctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	// checks of a closed record never resolve
	stop := context.AfterFunc(rec.baseContext(), cancel)
	defer stop()
	for _, f := range watch {
		if _, err := f.WaitSettled(wctx); err != nil {
			g.log.Warnw("gate: stopped waiting for pending field",
				"record", rec.ID(), "path", f.Path(), "timeout", g.timeout, "error", err)
			break
		}
	}

	ok := true
	for i, c := range targets {
		if !satisfied(c) {
			g.log.Debugw("gate: control not satisfied", "record", rec.ID(), "name", names[i])
			ok = false
		}
	}
	return ok
}

func satisfied(c Control) bool {
	switch c := c.(type) {
	case *Field:
		return fieldSatisfied(c)
	case *Record:
		for _, f := range c.fieldsDeep() {
			if !fieldSatisfied(f) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func fieldSatisfied(f *Field) bool {
	switch f.Status() {
	case StatusValid:
		return true
	case StatusDisabled:
		return !f.Empty()
	default:
		return false
	}
}
