package formguard_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/networked-ai/formguard"
)

func TestField_SyncFailureSkipsAsync(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	var calls atomic.Int32
	async := func(ctx context.Context, _ *formguard.Field, _ any) *formguard.Issue {
		calls.Add(1)
		return nil
	}
	f := rec.RegisterSpec(formguard.FieldSpec{
		Name:    "username",
		Initial: "ab",
		Rules:   []formguard.SyncRule{minLen(6)},
		Async:   []formguard.AsyncRule{async},
	})
	if f.Status() != formguard.StatusInvalid || !f.HasIssue(formguard.CodeMinLength) {
		t.Fatalf("expected minlength failure, got %v %v", f.Status(), f.Issues())
	}
	if calls.Load() != 0 {
		t.Fatalf("async rule must not run after a sync failure")
	}
	if iss := f.Issues(); iss[0].Params["min"] != 6 {
		t.Fatalf("expected min param, got %v", iss[0].Params)
	}
}

func TestField_PendingUntilResolved(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	br := newBlockingRule(nil)
	f := rec.RegisterSpec(formguard.FieldSpec{
		Name:    "email",
		Initial: "a@b.c",
		Async:   []formguard.AsyncRule{br.Rule()},
	})
	if f.Status() != formguard.StatusPending || rec.Status() != formguard.StatusPending {
		t.Fatalf("expected pending, got field=%v record=%v", f.Status(), rec.Status())
	}
	br.Release()
	if s := settle(t, f); s != formguard.StatusValid {
		t.Fatalf("expected valid, got %v", s)
	}
}

func TestField_AsyncIssuesCarryPath(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	taken := formguard.NewIssue(formguard.CodeTaken, "taken")
	f := rec.Group("account").RegisterSpec(formguard.FieldSpec{
		Name:    "username",
		Initial: "sixlong",
		Async:   []formguard.AsyncRule{delayedRule(10*time.Millisecond, taken)},
	})
	if s := settle(t, f); s != formguard.StatusInvalid {
		t.Fatalf("expected invalid, got %v", s)
	}
	iss := f.Issues()
	if len(iss) != 1 || iss[0].Path != "/account/username" || iss[0].Code != formguard.CodeTaken {
		t.Fatalf("unexpected issues %v", iss)
	}
}

func TestField_SupersededResultDiscarded(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	staleGo := make(chan struct{})
	staleDone := make(chan struct{})
	rule := func(ctx context.Context, _ *formguard.Field, v any) *formguard.Issue {
		if v == "stale" {
			// ignores cancellation to model a late network answer
			<-staleGo
			defer close(staleDone)
			return formguard.NewIssue(formguard.CodeTaken, "taken")
		}
		return nil
	}
	f := rec.RegisterSpec(formguard.FieldSpec{Name: "username", Async: []formguard.AsyncRule{rule}})

	var mu sync.Mutex
	var seen []formguard.Status
	unsubscribe := f.OnChange(func(ev formguard.FieldEvent) {
		mu.Lock()
		seen = append(seen, ev.Status)
		mu.Unlock()
	})
	defer unsubscribe()

	f.SetValue("stale")
	f.SetValue("fresh")
	if s := settle(t, f); s != formguard.StatusValid {
		t.Fatalf("expected valid, got %v", s)
	}
	close(staleGo)
	<-staleDone
	time.Sleep(20 * time.Millisecond)

	if f.Status() != formguard.StatusValid || len(f.Issues()) != 0 {
		t.Fatalf("stale result applied: %v %v", f.Status(), f.Issues())
	}
	mu.Lock()
	defer mu.Unlock()
	for _, s := range seen {
		if s == formguard.StatusInvalid {
			t.Fatalf("stale invalid status was published: %v", seen)
		}
	}
}

func TestField_WaitSettledHonoursContext(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	f := rec.RegisterSpec(formguard.FieldSpec{Name: "x", Initial: "v", Async: []formguard.AsyncRule{neverRule()}})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s, err := f.WaitSettled(ctx)
	if s != formguard.StatusPending || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected pending with deadline error, got %v %v", s, err)
	}
}

func TestField_OnChangeUnsubscribe(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	f := rec.Register("name", "", required)
	var events []formguard.FieldEvent
	unsubscribe := f.OnChange(func(ev formguard.FieldEvent) { events = append(events, ev) })

	f.SetValue("Ada")
	if len(events) != 1 || events[0].Value != "Ada" || events[0].Status != formguard.StatusValid || events[0].Path != "/name" {
		t.Fatalf("unexpected events %+v", events)
	}
	unsubscribe()
	f.SetValue("Bob")
	if len(events) != 1 {
		t.Fatalf("listener called after unsubscribe")
	}
}

func TestField_AsyncPanicFailsClosed(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	boom := func(context.Context, *formguard.Field, any) *formguard.Issue { panic("boom") }
	f := rec.RegisterSpec(formguard.FieldSpec{Name: "x", Initial: "v", Async: []formguard.AsyncRule{boom}})
	if s := settle(t, f); s != formguard.StatusInvalid || !f.HasIssue(formguard.CodeCheckFailed) {
		t.Fatalf("expected checkFailed, got %v %v", s, f.Issues())
	}
}

func TestField_MultipleAsyncRulesMerge(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	a := delayedRule(15*time.Millisecond, formguard.NewIssue("first", "first"))
	b := delayedRule(1*time.Millisecond, formguard.NewIssue("second", "second"))
	f := rec.RegisterSpec(formguard.FieldSpec{Name: "x", Initial: "v", Async: []formguard.AsyncRule{a, b}})
	settle(t, f)
	iss := f.Issues()
	if len(iss) != 2 || iss[0].Code != "first" || iss[1].Code != "second" {
		t.Fatalf("issues must follow rule order, got %v", iss)
	}
}

func TestField_DisableCancelsPending(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	br := newBlockingRule(formguard.NewIssue(formguard.CodeTaken, "taken"))
	f := rec.RegisterSpec(formguard.FieldSpec{Name: "x", Initial: "v", Async: []formguard.AsyncRule{br.Rule()}})
	f.Disable()
	br.Release()
	time.Sleep(10 * time.Millisecond)
	if f.Status() != formguard.StatusDisabled || len(f.Issues()) != 0 {
		t.Fatalf("expected disabled without issues, got %v %v", f.Status(), f.Issues())
	}
}

func TestField_CloseLeavesPending(t *testing.T) {
	rec := formguard.NewRecord()
	f := rec.RegisterSpec(formguard.FieldSpec{Name: "x", Initial: "v", Async: []formguard.AsyncRule{neverRule()}})
	rec.Close()
	time.Sleep(10 * time.Millisecond)
	if f.Status() != formguard.StatusPending {
		t.Fatalf("expected the field to stay pending after Close, got %v", f.Status())
	}
}

func TestField_TouchedAndEmpty(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	f := rec.Register("tags", []string{})
	if !f.Empty() || f.Touched() {
		t.Fatalf("expected empty untouched field")
	}
	f.MarkTouched()
	if !f.Touched() || !rec.Touched() {
		t.Fatalf("expected touched")
	}
}
