package guard

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRateLimiter_FixedWindow(t *testing.T) {
	l := NewMemoryRateLimiter(3, time.Minute)
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	// Four rapid calls: allowed, allowed, allowed, denied.
	for i, wantAllowed := range []bool{true, true, true, false} {
		res, err := l.Check(ctx, "https://example.com")
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if res.Allowed != wantAllowed {
			t.Errorf("call %d: Allowed = %v, want %v", i+1, res.Allowed, wantAllowed)
		}
		if i < 3 && res.Remaining != 3-(i+1) {
			t.Errorf("call %d: Remaining = %d, want %d", i+1, res.Remaining, 3-(i+1))
		}
	}

	// Denied result carries the window reset time.
	res, _ := l.Check(ctx, "https://example.com")
	if res.Allowed {
		t.Fatal("still inside the window, should be denied")
	}
	wantReset := now.Add(time.Minute)
	if !res.ResetAt.Equal(wantReset) {
		t.Errorf("ResetAt = %v, want %v", res.ResetAt, wantReset)
	}
}

func TestMemoryRateLimiter_WindowElapses(t *testing.T) {
	l := NewMemoryRateLimiter(1, time.Minute)
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	if res, _ := l.Check(ctx, "origin"); !res.Allowed {
		t.Fatal("first call should be allowed")
	}
	if res, _ := l.Check(ctx, "origin"); res.Allowed {
		t.Fatal("second call inside the window should be denied")
	}

	now = now.Add(61 * time.Second)
	res, _ := l.Check(ctx, "origin")
	if !res.Allowed {
		t.Error("a call after the window elapses starts a fresh window")
	}
	if res.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0 (max=1, count=1)", res.Remaining)
	}
}

func TestMemoryRateLimiter_IndependentOrigins(t *testing.T) {
	l := NewMemoryRateLimiter(1, time.Minute)
	ctx := context.Background()

	if res, _ := l.Check(ctx, "a"); !res.Allowed {
		t.Fatal("origin a first call should be allowed")
	}
	if res, _ := l.Check(ctx, "b"); !res.Allowed {
		t.Error("origin b has its own window")
	}
	if res, _ := l.Check(ctx, "a"); res.Allowed {
		t.Error("origin a is exhausted")
	}
}

func TestMemoryRateLimiter_SweepsExpiredEntries(t *testing.T) {
	l := NewMemoryRateLimiter(10, time.Minute)
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	l.Check(ctx, "a")
	l.Check(ctx, "b")
	if len(l.windows) != 2 {
		t.Fatalf("windows = %d, want 2", len(l.windows))
	}

	now = now.Add(2 * time.Minute)
	l.Check(ctx, "c")
	if len(l.windows) != 1 {
		t.Errorf("expired windows should be swept on check, got %d entries", len(l.windows))
	}
}
