package formguard

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Control is a named member of a Record: either a *Field or a nested *Record.
type Control interface {
	Name() string
	Path() string
	Status() Status
	Disabled() bool
	Touched() bool
	MarkTouched()
	Revalidate()
	Issues() Issues
}

var (
	_ Control = (*Field)(nil)
	_ Control = (*Record)(nil)
)

// RecordOption configures a root Record.
type RecordOption func(*recordOptions)

type recordOptions struct {
	ctx context.Context
}

// WithContext sets the parent context of every async check started in the
// record. Cancelling it has the same effect as Close.
func WithContext(ctx context.Context) RecordOption {
	return func(o *recordOptions) { o.ctx = ctx }
}

// Record is a hierarchical collection of named fields and sub-records. Several
// components may share one Record; by convention each field is mutated only by
// the component that registered it.
type Record struct {
	id     string
	name   string
	parent *Record
	ctx    context.Context
	stop   context.CancelFunc

	mu       sync.RWMutex
	controls map[string]Control
	order    []string
	disabled bool
}

// NewRecord returns an empty root record.
func NewRecord(opts ...RecordOption) *Record {
	o := recordOptions{ctx: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}
	return newRecord(o.ctx, "", nil)
}

func newRecord(parent context.Context, name string, up *Record) *Record {
	ctx, stop := context.WithCancel(parent)
	return &Record{
		id:       uuid.NewString(),
		name:     name,
		parent:   up,
		ctx:      ctx,
		stop:     stop,
		controls: map[string]Control{},
	}
}

// ID is a unique identifier of this record instance.
func (r *Record) ID() string { return r.id }

// Name is empty for a root record.
func (r *Record) Name() string    { return r.name }
func (r *Record) Parent() *Record { return r.parent }
func (r *Record) Path() string    { return r.pathRef().Pointer() }

func (r *Record) pathRef() PathRef {
	if r.parent == nil {
		return RootPath()
	}
	return r.parent.pathRef().Field(r.name)
}

func (r *Record) baseContext() context.Context { return r.ctx }

// Close cancels every in-flight async check in this record and its
// sub-records. Fields caught pending stay pending.
func (r *Record) Close() { r.stop() }

// Register attaches a field with the given initial value and sync rules. If a
// field with that name exists it is returned untouched.
func (r *Record) Register(name string, initial any, rules ...SyncRule) *Field {
	return r.RegisterSpec(FieldSpec{Name: name, Initial: initial, Rules: rules})
}

// RegisterSpec attaches a field described by spec. An existing field of the
// same name is kept unless spec.Force is set, in which case it is replaced in
// place and detached. Registering into a disabled record disables the field.
func (r *Record) RegisterSpec(spec FieldSpec) *Field {
	if spec.Name == "" {
		panic("formguard: field name must not be empty")
	}
	r.mu.Lock()
	var old *Field
	if c, ok := r.controls[spec.Name]; ok {
		existing, isField := c.(*Field)
		if !isField {
			r.mu.Unlock()
			panic(fmt.Sprintf("formguard: %q is already registered as a group", spec.Name))
		}
		if !spec.Force {
			r.mu.Unlock()
			return existing
		}
		old = existing
	} else {
		r.order = append(r.order, spec.Name)
	}
	if r.disabled {
		spec.Disabled = true
	}
	f := newField(r, spec)
	// the initial status is computed before the field becomes visible
	f.mu.Lock()
	f.revalidateLocked()
	f.mu.Unlock()
	r.controls[spec.Name] = f
	r.mu.Unlock()

	if old != nil {
		old.detach()
	}
	return f
}

// Group returns the sub-record called name, creating it when missing.
func (r *Record) Group(name string) *Record {
	if name == "" {
		panic("formguard: group name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.controls[name]; ok {
		g, isGroup := c.(*Record)
		if !isGroup {
			panic(fmt.Sprintf("formguard: %q is already registered as a field", name))
		}
		return g
	}
	g := newRecord(r.ctx, name, r)
	g.disabled = r.disabled
	r.controls[name] = g
	r.order = append(r.order, name)
	return g
}

// Remove detaches the control called name. It reports whether it existed.
func (r *Record) Remove(name string) bool {
	r.mu.Lock()
	c, ok := r.controls[name]
	if ok {
		delete(r.controls, name)
		for i, n := range r.order {
			if n == name {
				r.order = append(r.order[:i:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	switch c := c.(type) {
	case *Field:
		c.detach()
	case *Record:
		for _, f := range c.fieldsDeep() {
			f.detach()
		}
		c.Close()
	}
	return true
}

// Get resolves a dotted path ("settings.mobile") to a control, or nil.
func (r *Record) Get(path string) Control {
	parts := splitName(path)
	if len(parts) == 0 {
		return nil
	}
	cur := r
	for i, p := range parts {
		cur.mu.RLock()
		c, ok := cur.controls[p]
		cur.mu.RUnlock()
		if !ok {
			return nil
		}
		if i == len(parts)-1 {
			return c
		}
		g, isGroup := c.(*Record)
		if !isGroup {
			return nil
		}
		cur = g
	}
	return nil
}

// Field resolves a dotted path to a field.
func (r *Record) Field(path string) (*Field, bool) {
	f, ok := r.Get(path).(*Field)
	return f, ok
}

// Names returns the names of the direct controls in registration order.
func (r *Record) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Controls returns the direct controls in registration order.
func (r *Record) Controls() []Control {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Control, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.controls[n])
	}
	return out
}

// fieldsDeep returns every descendant field, depth first, in order.
func (r *Record) fieldsDeep() []*Field {
	var out []*Field
	for _, c := range r.Controls() {
		switch c := c.(type) {
		case *Field:
			out = append(out, c)
		case *Record:
			out = append(out, c.fieldsDeep()...)
		}
	}
	return out
}

// Status aggregates the children: disabled records report StatusDisabled,
// otherwise Invalid wins over Pending, which wins over Valid. A record whose
// children are all disabled is disabled.
func (r *Record) Status() Status {
	if r.Disabled() {
		return StatusDisabled
	}
	children := r.Controls()
	enabled := 0
	pending := false
	for _, c := range children {
		switch c.Status() {
		case StatusDisabled:
			continue
		case StatusInvalid:
			return StatusInvalid
		case StatusPending:
			pending = true
		}
		enabled++
	}
	switch {
	case pending:
		return StatusPending
	case enabled == 0 && len(children) > 0:
		return StatusDisabled
	default:
		return StatusValid
	}
}

func (r *Record) Valid() bool { return r.Status() == StatusValid }

func (r *Record) Disabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.disabled
}

// Disable disables the record and, recursively, every descendant.
func (r *Record) Disable() { r.setDisabled(true) }

// Enable enables the record and, recursively, every descendant.
func (r *Record) Enable() { r.setDisabled(false) }

func (r *Record) setDisabled(v bool) {
	r.mu.Lock()
	r.disabled = v
	r.mu.Unlock()
	for _, c := range r.Controls() {
		switch c := c.(type) {
		case *Field:
			if v {
				c.Disable()
			} else {
				c.Enable()
			}
		case *Record:
			c.setDisabled(v)
		}
	}
}

// Touched reports whether any descendant field was touched.
func (r *Record) Touched() bool {
	for _, f := range r.fieldsDeep() {
		if f.Touched() {
			return true
		}
	}
	return false
}

// MarkTouched touches every descendant field.
func (r *Record) MarkTouched() {
	for _, f := range r.fieldsDeep() {
		f.MarkTouched()
	}
}

// Revalidate re-evaluates every descendant field.
func (r *Record) Revalidate() {
	for _, f := range r.fieldsDeep() {
		f.Revalidate()
	}
}

// Issues collects the issues of every descendant field in order.
func (r *Record) Issues() Issues {
	var out Issues
	for _, f := range r.fieldsDeep() {
		out = append(out, f.Issues()...)
	}
	return out
}

// Err returns the record's issues as an error, or nil when there are none.
// Fields still pending are reported with CodePending.
func (r *Record) Err() error {
	var out Issues
	for _, f := range r.fieldsDeep() {
		if f.Status() == StatusPending {
			out = AppendIssues(out, f.parent.pathRef().Field(f.name).Issue(CodePending, "validation still pending"))
			continue
		}
		out = AppendIssues(out, f.Issues()...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Patch sets values programmatically without marking fields dirty. Nested
// maps address sub-records; unknown names are ignored.
func (r *Record) Patch(values map[string]any) {
	for name, v := range values {
		r.mu.RLock()
		c, ok := r.controls[name]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		switch c := c.(type) {
		case *Field:
			c.patch(v)
		case *Record:
			if m, isMap := v.(map[string]any); isMap {
				c.Patch(m)
			}
		}
	}
}

// Values returns the raw values of every control, disabled ones included.
func (r *Record) Values() map[string]any {
	out := map[string]any{}
	for _, c := range r.Controls() {
		switch c := c.(type) {
		case *Field:
			out[c.Name()] = c.Value()
		case *Record:
			out[c.Name()] = c.Values()
		}
	}
	return out
}
