package availability

import "sync/atomic"

// Trigger is an armable gate for rules that should only check on demand, for
// example on submit rather than on every keystroke. The zero value is disarmed.
type Trigger struct {
	armed atomic.Bool
}

func (t *Trigger) Arm()            { t.armed.Store(true) }
func (t *Trigger) Disarm()         { t.armed.Store(false) }
func (t *Trigger) Armed() bool     { return t.armed.Load() }
func (t *Trigger) ShouldRun() bool { return t.Armed() }
