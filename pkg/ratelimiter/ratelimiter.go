package ratelimiter

import (
	"context"
	"fmt"
	"time"
)

// Limiter enforces a fixed number of hits per window.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
}

// New builds a Limiter over store.
func New(store Store, cfg Config) (*Limiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Limiter{store: store, limit: cfg.Limit, window: cfg.Window, now: time.Now}, nil
}

func (l *Limiter) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN records n hits. Denied hits still count, so a client hammering an
// exhausted window does not get a fresh one any sooner.
func (l *Limiter) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: must be positive, got %d", ErrInvalidTokenCount, n)
	}
	count, resetAt, err := l.store.Increment(ctx, key, n, l.window)
	if err != nil {
		return nil, err
	}
	return &Result{
		Limit:     l.limit,
		Remaining: max(0, l.limit-count),
		ResetAt:   resetAt,
		allowed:   count <= l.limit,
	}, nil
}

func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}

func (c Config) validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidConfig, c.Limit)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %v", ErrInvalidConfig, c.Window)
	}
	return nil
}
