// Package session holds client session state that must be owned by one
// lifecycle-scoped object instead of package-level variables.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/networked-ai/formguard"
	"github.com/networked-ai/formguard/internal/logger"
)

// ErrPromptOpen is returned by Prompt while another expiry prompt is showing.
var ErrPromptOpen = errors.New("session: expiry prompt already open")

// ExpiryGuard ensures that at most one "session expired" prompt is shown at a
// time, no matter how many requests fail with an expired session at once.
type ExpiryGuard struct {
	mu    sync.Mutex
	open  bool
	shown int
	log   formguard.Logger
}

// NewExpiryGuard returns a guard logging to l (nop when nil).
func NewExpiryGuard(l formguard.Logger) *ExpiryGuard {
	if l == nil {
		l = logger.Nop()
	}
	return &ExpiryGuard{log: l}
}

// Open reports whether a prompt is currently showing.
func (g *ExpiryGuard) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Shown counts the prompts shown over the guard's lifetime.
func (g *ExpiryGuard) Shown() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shown
}

// Prompt runs show unless a prompt is already open, in which case it returns
// ErrPromptOpen immediately. The guard is released when show returns.
func (g *ExpiryGuard) Prompt(ctx context.Context, show func(context.Context) error) error {
	g.mu.Lock()
	if g.open {
		g.mu.Unlock()
		g.log.Debugw("session expiry prompt suppressed")
		return ErrPromptOpen
	}
	g.open = true
	g.shown++
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.open = false
		g.mu.Unlock()
	}()
	if err := show(ctx); err != nil {
		g.log.Warnw("session expiry prompt failed", "error", err)
		return err
	}
	return nil
}
