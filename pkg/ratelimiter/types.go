package ratelimiter

import "time"

// Config is the budget of one key.
type Config struct {
	Limit   int           `env:"RATE_LIMIT_REQUESTS" envDefault:"120"`
	Window  time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	Backend string        `env:"RATE_LIMIT_BACKEND" envDefault:"memory"`
}

// Result is the outcome of one check.
type Result struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	allowed   bool
}

// Allowed reports whether the hit fit in the window.
func (r *Result) Allowed() bool {
	return r.allowed
}

// RetryAfter is how long until the window resets, or 0 for an allowed hit.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r.allowed {
		return 0
	}
	return max(0, r.ResetAt.Sub(now))
}
