// Package maplock serializes work on a single map. Finish ingestion holds
// the map's lock for the duration of its transaction, and a leaderboard read
// that needs to rebuild the rank cache takes the same lock, so the two can
// never interleave on one map. Distinct maps proceed in parallel.
package maplock

import (
	"context"
	"sync"
)

// Registry is a keyed advisory lock. Waiters block on a channel that the
// holder closes at release; there is no busy polling.
type Registry struct {
	mu   sync.Mutex
	held map[uint32]chan struct{}
}

// NewRegistry creates an empty lock registry
func NewRegistry() *Registry {
	return &Registry{held: make(map[uint32]chan struct{})}
}

// Lock acquires the map's lock, blocking until it is free or the context is
// cancelled.
func (r *Registry) Lock(ctx context.Context, mapID uint32) error {
	for {
		r.mu.Lock()
		release, taken := r.held[mapID]
		if !taken {
			r.held[mapID] = make(chan struct{})
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()

		select {
		case <-release:
			// holder released, try again
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Unlock releases the map's lock and wakes every waiter
func (r *Registry) Unlock(mapID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	release, taken := r.held[mapID]
	if !taken {
		return
	}
	delete(r.held, mapID)
	close(release)
}

// With runs fn while holding the map's lock
func (r *Registry) With(ctx context.Context, mapID uint32, fn func() error) error {
	if err := r.Lock(ctx, mapID); err != nil {
		return err
	}
	defer r.Unlock(mapID)
	return fn()
}
