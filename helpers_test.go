package formguard_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/networked-ai/formguard"
)

// blockingRule counts invocations and resolves once release is closed, or
// returns early when its run is cancelled.
type blockingRule struct {
	calls   atomic.Int32
	release chan struct{}
	once    sync.Once
	issue   *formguard.Issue
}

func newBlockingRule(issue *formguard.Issue) *blockingRule {
	return &blockingRule{release: make(chan struct{}), issue: issue}
}

func (b *blockingRule) Rule() formguard.AsyncRule {
	return func(ctx context.Context, _ *formguard.Field, _ any) *formguard.Issue {
		b.calls.Add(1)
		select {
		case <-b.release:
			return b.issue
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *blockingRule) Release() { b.once.Do(func() { close(b.release) }) }

// delayedRule resolves after d with issue (nil for valid).
func delayedRule(d time.Duration, issue *formguard.Issue) formguard.AsyncRule {
	return func(ctx context.Context, _ *formguard.Field, _ any) *formguard.Issue {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return issue
		case <-ctx.Done():
			return nil
		}
	}
}

// neverRule never resolves on its own.
func neverRule() formguard.AsyncRule {
	return func(ctx context.Context, _ *formguard.Field, _ any) *formguard.Issue {
		<-ctx.Done()
		return nil
	}
}

func minLen(n int) formguard.SyncRule {
	return func(v any) *formguard.Issue {
		s, _ := v.(string)
		if s != "" && len(s) < n {
			return formguard.NewIssue(formguard.CodeMinLength, "too short", "min", n)
		}
		return nil
	}
}

func required(v any) *formguard.Issue {
	if formguard.IsEmpty(v) {
		return formguard.NewIssue(formguard.CodeRequired, "required")
	}
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func settle(t *testing.T, f *formguard.Field) formguard.Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := f.WaitSettled(ctx)
	if err != nil {
		t.Fatalf("field %s did not settle: %v", f.Path(), err)
	}
	return s
}
