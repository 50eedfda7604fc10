package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/networked-ai/formguard/session"
)

func TestExpiryGuard_SuppressesConcurrentPrompts(t *testing.T) {
	g := session.NewExpiryGuard(nil)
	release := make(chan struct{})
	entered := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- g.Prompt(context.Background(), func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	if !g.Open() {
		t.Fatalf("expected guard to be open while prompt shows")
	}
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Prompt(context.Background(), func(context.Context) error {
				t.Errorf("second prompt must not run")
				return nil
			})
			if !errors.Is(err, session.ErrPromptOpen) {
				t.Errorf("expected ErrPromptOpen, got %v", err)
			}
		}()
	}
	wg.Wait()

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first prompt: %v", err)
	}
	if g.Open() {
		t.Fatalf("expected guard to be released")
	}
	if g.Shown() != 1 {
		t.Fatalf("expected 1 prompt shown, got %d", g.Shown())
	}
}

func TestExpiryGuard_ReleasesAfterError(t *testing.T) {
	g := session.NewExpiryGuard(nil)
	boom := errors.New("boom")
	if err := g.Prompt(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := g.Prompt(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected second prompt to run after release, got %v", err)
	}
	if g.Shown() != 2 {
		t.Fatalf("expected 2 prompts shown, got %d", g.Shown())
	}
}
