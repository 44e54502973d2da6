package ratelimiter

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps counters in process. Expired windows are evicted by a
// background sweep, so idle keys do not accumulate.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time

	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often expired windows are evicted.
// Zero disables the background sweep.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		ms.cleanupInterval = interval
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if now != nil {
			ms.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		counters:        make(map[string]*counter),
		now:             time.Now,
		cleanupInterval: time.Minute,
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ms)
	}
	if ms.cleanupInterval > 0 {
		go ms.cleanup()
	}
	return ms
}

func (ms *MemoryStore) Increment(_ context.Context, key string, n int, window time.Duration) (int, time.Time, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	c, ok := ms.counters[key]
	if !ok || !now.Before(c.resetAt) {
		c = &counter{resetAt: now.Add(window)}
		ms.counters[key] = c
	}
	c.count += n
	return c.count, c.resetAt, nil
}

func (ms *MemoryStore) Reset(_ context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.counters, key)
	return nil
}

// Len returns the number of live counters.
func (ms *MemoryStore) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.counters)
}

// Evict drops expired windows.
func (ms *MemoryStore) Evict() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	for key, c := range ms.counters {
		if !now.Before(c.resetAt) {
			delete(ms.counters, key)
		}
	}
}

func (ms *MemoryStore) cleanup() {
	ticker := time.NewTicker(ms.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ms.Evict()
		case <-ms.stop:
			return
		}
	}
}

// Close stops the background sweep. Safe to call more than once.
func (ms *MemoryStore) Close() {
	ms.stopOnce.Do(func() { close(ms.stop) })
}
