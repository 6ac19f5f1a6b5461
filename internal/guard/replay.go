package guard

import (
	"container/list"
	"context"
	"sync"
)

// DefaultDedupeCapacity bounds the in-memory replay set.
const DefaultDedupeCapacity = 1000

// MemoryReplayGuard is an insertion-ordered, capacity-bounded set of request
// ids. When the set is full, the oldest id is evicted to make room.
type MemoryReplayGuard struct {
	mu       sync.Mutex
	capacity int
	order    *list.List               // front = oldest
	seen     map[string]*list.Element // request id -> order entry
}

// NewMemoryReplayGuard creates a replay guard holding at most capacity ids.
func NewMemoryReplayGuard(capacity int) *MemoryReplayGuard {
	if capacity <= 0 {
		capacity = DefaultDedupeCapacity
	}
	return &MemoryReplayGuard{
		capacity: capacity,
		order:    list.New(),
		seen:     make(map[string]*list.Element, capacity),
	}
}

// CheckAndRecord implements ReplayGuard.
func (g *MemoryReplayGuard) CheckAndRecord(_ context.Context, requestID string) (bool, error) {
	if requestID == "" {
		return false, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[requestID]; ok {
		return true, nil
	}

	g.seen[requestID] = g.order.PushBack(requestID)
	if g.order.Len() > g.capacity {
		oldest := g.order.Front()
		g.order.Remove(oldest)
		delete(g.seen, oldest.Value.(string))
	}
	return false, nil
}

// Len returns the number of remembered ids.
func (g *MemoryReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.order.Len()
}
