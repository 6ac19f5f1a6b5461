package guard

import (
	"context"
	"time"
)

// ReplayGuard remembers recently seen request ids and rejects duplicates.
type ReplayGuard interface {
	// CheckAndRecord reports whether requestID has been seen before and, if
	// not, records it. The check and the insert are a single atomic step: two
	// concurrent calls with the same id cannot both observe "new".
	//
	// An empty requestID is never a duplicate. The signature covers the
	// request id, so a sender cannot strip the id off a signed payload to
	// replay it.
	CheckAndRecord(ctx context.Context, requestID string) (duplicate bool, err error)
}

// RateResult is the outcome of a rate-limit check.
type RateResult struct {
	Allowed   bool
	Limit     int
	Remaining int

	// ResetAt is when the current window ends. Only meaningful when the
	// request was denied.
	ResetAt time.Time
}

// RateLimiter applies a fixed-window request budget per origin.
type RateLimiter interface {
	Check(ctx context.Context, origin string) (RateResult, error)
}
