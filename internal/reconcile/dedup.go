package reconcile

import (
	"context"
	"sync"
	"time"
)

// Gate prevents duplicate processing of the same call-completion event.
//
// Acquire is test-and-set: the first caller for a call id wins and must
// Release on failure so a redelivered event can retry. Entries expire after
// a TTL; the durable idempotency backstop is the session's updated flag in
// the store, never the gate.
type Gate interface {
	Acquire(ctx context.Context, callID string) (bool, error)
	Release(ctx context.Context, callID string) error
}

// MemoryGate is a TTL-windowed in-process Gate. Suitable when a single
// instance serves the webhook endpoint; use RedisGate otherwise.
type MemoryGate struct {
	ttl   time.Duration
	clock func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time // callId -> acquisition time
}

func NewMemoryGate(ttl time.Duration) *MemoryGate {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryGate{
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[string]time.Time),
	}
}

func (g *MemoryGate) Acquire(ctx context.Context, callID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	g.sweepLocked(now)

	if at, ok := g.entries[callID]; ok && now.Sub(at) < g.ttl {
		return false, nil
	}
	g.entries[callID] = now
	return true, nil
}

func (g *MemoryGate) Release(ctx context.Context, callID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, callID)
	return nil
}

// sweepLocked drops expired entries so the map stays bounded by the volume
// of calls completed within one TTL window.
func (g *MemoryGate) sweepLocked(now time.Time) {
	for id, at := range g.entries {
		if now.Sub(at) >= g.ttl {
			delete(g.entries, id)
		}
	}
}
