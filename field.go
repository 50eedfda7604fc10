package formguard

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// FieldSpec is the explicit registration-time configuration of a field.
type FieldSpec struct {
	Name     string
	Initial  any
	Rules    []SyncRule
	Async    []AsyncRule
	Disabled bool
	// Force replaces an existing field of the same name instead of keeping it.
	// Use it when a consumer's rule configuration changes at runtime.
	Force bool
}

// FieldEvent is delivered to listeners after a field's value or status changed.
type FieldEvent struct {
	Name   string
	Path   string
	Value  any
	Status Status
	Issues Issues
}

// Listener receives field events. It runs on the goroutine that caused the
// change and must not block.
type Listener func(FieldEvent)

type subscription struct {
	id string
	fn Listener
}

// Field is a single named, validatable piece of input state owned by a Record.
// All methods are safe for concurrent use.
type Field struct {
	name   string
	parent *Record

	mu       sync.Mutex
	value    any
	rules    []SyncRule
	async    []AsyncRule
	status   Status
	issues   Issues
	disabled bool
	touched  bool
	dirty    bool
	detached bool

	// gen identifies the value/config generation the current async run
	// belongs to; results from older generations are dropped.
	gen    uint64
	cancel context.CancelFunc
	// settled is non-nil while the field is pending and is closed when it
	// leaves the pending state.
	settled chan struct{}

	subs []subscription
}

func newField(parent *Record, spec FieldSpec) *Field {
	return &Field{
		name:     spec.Name,
		parent:   parent,
		value:    spec.Initial,
		rules:    append([]SyncRule(nil), spec.Rules...),
		async:    append([]AsyncRule(nil), spec.Async...),
		disabled: spec.Disabled,
	}
}

func (f *Field) Name() string    { return f.name }
func (f *Field) Parent() *Record { return f.parent }

// Path returns the JSON Pointer of the field inside its root record.
func (f *Field) Path() string { return f.parent.pathRef().Field(f.name).Pointer() }

func (f *Field) Value() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *Field) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *Field) Valid() bool { return f.Status() == StatusValid }

// Issues returns a copy of the field's active issues.
func (f *Field) Issues() Issues {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append(Issues(nil), f.issues...)
}

// HasIssue reports whether the field currently carries an issue with code.
func (f *Field) HasIssue(code string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issues.Has(code)
}

func (f *Field) Touched() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touched
}

func (f *Field) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

func (f *Field) Disabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disabled
}

// Empty reports whether the field holds no value (see IsEmpty).
func (f *Field) Empty() bool { return IsEmpty(f.Value()) }

// MarkTouched flags the field as visited. It does not revalidate.
func (f *Field) MarkTouched() {
	f.mu.Lock()
	f.touched = true
	f.mu.Unlock()
}

// SetValue stores user input, marks the field dirty and revalidates. Any async
// run started for the previous value is cancelled and its result discarded.
func (f *Field) SetValue(v any) {
	f.update(func() {
		f.value = v
		f.dirty = true
	})
}

// patch stores a programmatic value without marking the field dirty.
func (f *Field) patch(v any) {
	f.update(func() { f.value = v })
}

// SetRules replaces the sync rules and revalidates.
func (f *Field) SetRules(rules ...SyncRule) {
	f.update(func() { f.rules = append([]SyncRule(nil), rules...) })
}

// SetAsyncRules replaces the async rules and revalidates.
func (f *Field) SetAsyncRules(rules ...AsyncRule) {
	f.update(func() { f.async = append([]AsyncRule(nil), rules...) })
}

// Revalidate forces re-evaluation of every rule for the current value.
func (f *Field) Revalidate() { f.update(nil) }

// Disable excludes the field from validation; its status becomes StatusDisabled.
func (f *Field) Disable() {
	f.update(func() { f.disabled = true })
}

// Enable re-includes the field in validation.
func (f *Field) Enable() {
	f.update(func() { f.disabled = false })
}

// WaitSettled blocks until the field leaves StatusPending or ctx is done. It
// returns the settled status, or StatusPending together with ctx's error.
func (f *Field) WaitSettled(ctx context.Context) (Status, error) {
	for {
		f.mu.Lock()
		if f.status != StatusPending {
			s := f.status
			f.mu.Unlock()
			return s, nil
		}
		ch := f.settled
		f.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return StatusPending, ctx.Err()
		}
	}
}

// OnChange subscribes l to value and status changes. The returned function
// removes the subscription.
func (f *Field) OnChange(l Listener) (unsubscribe func()) {
	id := uuid.NewString()
	f.mu.Lock()
	f.subs = append(f.subs, subscription{id: id, fn: l})
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, s := range f.subs {
			if s.id == id {
				f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
				return
			}
		}
	}
}

// detach cancels in-flight async work and disconnects the field from its
// record. A detached field only evaluates sync rules.
func (f *Field) detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = true
	f.gen++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

func (f *Field) update(mut func()) {
	f.mu.Lock()
	if mut != nil {
		mut()
	}
	f.revalidateLocked()
	ev, subs := f.eventLocked()
	f.mu.Unlock()
	emit(subs, ev)
}

func (f *Field) revalidateLocked() {
	f.gen++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	if f.disabled {
		f.issues = nil
		f.setStatusLocked(StatusDisabled)
		return
	}

	var issues Issues
	for _, rule := range f.rules {
		if rule == nil {
			continue
		}
		if it := rule(f.value); it != nil {
			issues = append(issues, f.withPath(*it))
		}
	}
	if len(issues) > 0 {
		f.issues = issues
		f.setStatusLocked(StatusInvalid)
		return
	}
	f.issues = nil
	if len(f.async) == 0 || f.detached {
		f.setStatusLocked(StatusValid)
		return
	}

	ctx, cancel := context.WithCancel(f.parent.baseContext())
	f.cancel = cancel
	f.setStatusLocked(StatusPending)
	go f.runAsync(ctx, f.gen, f.value, append([]AsyncRule(nil), f.async...))
}

func (f *Field) runAsync(ctx context.Context, gen uint64, value any, rules []AsyncRule) {
	results := make([]*Issue, len(rules))
	var g errgroup.Group
	for i, rule := range rules {
		if rule == nil {
			continue
		}
		i, rule := i, rule
		g.Go(func() error {
			results[i] = f.callAsync(ctx, rule, value)
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return
	}

	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	var issues Issues
	for _, it := range results {
		if it != nil {
			issues = append(issues, f.withPath(*it))
		}
	}
	f.issues = issues
	if len(issues) > 0 {
		f.setStatusLocked(StatusInvalid)
	} else {
		f.setStatusLocked(StatusValid)
	}
	ev, subs := f.eventLocked()
	f.mu.Unlock()
	emit(subs, ev)
}

// callAsync runs one async rule, turning a panic into a failed check.
func (f *Field) callAsync(ctx context.Context, rule AsyncRule, value any) (it *Issue) {
	defer func() {
		if r := recover(); r != nil {
			it = &Issue{Code: CodeCheckFailed, Message: "async rule panicked", Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	return rule(ctx, f, value)
}

func (f *Field) withPath(it Issue) Issue {
	if it.Path == "" {
		it.Path = f.Path()
	}
	return it
}

func (f *Field) setStatusLocked(s Status) {
	f.status = s
	if s == StatusPending {
		if f.settled == nil {
			f.settled = make(chan struct{})
		}
		return
	}
	if f.settled != nil {
		close(f.settled)
		f.settled = nil
	}
}

func (f *Field) eventLocked() (FieldEvent, []subscription) {
	ev := FieldEvent{
		Name:   f.name,
		Path:   f.Path(),
		Value:  f.value,
		Status: f.status,
		Issues: append(Issues(nil), f.issues...),
	}
	if len(f.subs) == 0 {
		return ev, nil
	}
	return ev, append([]subscription(nil), f.subs...)
}

func emit(subs []subscription, ev FieldEvent) {
	for _, s := range subs {
		s.fn(ev)
	}
}
