package acquisition

import (
	"context"
	"sync"
)

// Ready is a level-triggered readiness signal. The acquisition loop is the
// only writer; any number of goroutines may wait on it.
type Ready struct {
	mu   sync.Mutex
	ch   chan struct{}
	set  bool
	sets int64
}

// NewReady returns a cleared signal.
func NewReady() *Ready {
	return &Ready{ch: make(chan struct{})}
}

// Set raises the signal and releases all current waiters. Setting an
// already raised signal is a no-op.
func (r *Ready) Set() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set {
		return
	}
	r.set = true
	r.sets++
	close(r.ch)
}

// Clear lowers the signal. Waiters that already returned are unaffected.
func (r *Ready) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.set {
		return
	}
	r.set = false
	r.ch = make(chan struct{})
}

// IsSet reports whether the signal is currently raised.
func (r *Ready) IsSet() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set
}

// Sets returns how many times the signal has gone from cleared to raised.
func (r *Ready) Sets() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sets
}

// Wait blocks until the signal is raised or ctx is done.
func (r *Ready) Wait(ctx context.Context) error {
	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
