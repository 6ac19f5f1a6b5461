package guard

import (
	"context"
	"sync"
	"time"
)

type rateWindow struct {
	count       int
	windowStart time.Time
}

// MemoryRateLimiter is a fixed-window counter per origin. Expired windows
// across all origins are swept lazily on each check so the table cannot grow
// without bound.
type MemoryRateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	windows     map[string]*rateWindow
	now         func() time.Time
}

// NewMemoryRateLimiter creates a limiter allowing maxRequests per window for
// each origin.
func NewMemoryRateLimiter(maxRequests int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		maxRequests: maxRequests,
		window:      window,
		windows:     make(map[string]*rateWindow),
		now:         time.Now,
	}
}

// Check implements RateLimiter.
func (l *MemoryRateLimiter) Check(_ context.Context, origin string) (RateResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	// Lazy sweep of expired windows, all origins.
	for key, w := range l.windows {
		if now.Sub(w.windowStart) > l.window {
			delete(l.windows, key)
		}
	}

	w, ok := l.windows[origin]
	if !ok || now.Sub(w.windowStart) > l.window {
		l.windows[origin] = &rateWindow{count: 1, windowStart: now}
		return RateResult{Allowed: true, Limit: l.maxRequests, Remaining: l.maxRequests - 1}, nil
	}

	if w.count >= l.maxRequests {
		return RateResult{
			Allowed:   false,
			Limit:     l.maxRequests,
			Remaining: 0,
			ResetAt:   w.windowStart.Add(l.window),
		}, nil
	}

	w.count++
	return RateResult{Allowed: true, Limit: l.maxRequests, Remaining: l.maxRequests - w.count}, nil
}
