package ratelimiter

import (
	"context"
	"time"
)

// Store keeps window counters.
type Store interface {
	// Increment adds n hits to the current window of key and returns the
	// window total and the time the window ends. A new window starts when
	// the previous one has expired.
	Increment(ctx context.Context, key string, n int, window time.Duration) (count int, resetAt time.Time, err error)

	// Reset drops the counter of key.
	Reset(ctx context.Context, key string) error
}
