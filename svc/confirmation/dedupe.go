package confirmation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Deduper remembers delivery keys for a while so repeated pushes are
// acknowledged without queuing more work.
type Deduper interface {
	// Claim records key and reports whether it was seen for the first time.
	Claim(ctx context.Context, key string) (bool, error)
	// Forget drops key so a delivery that could not be queued is accepted again.
	Forget(ctx context.Context, key string) error
}

// RedisDeduper keeps keys with SET NX and a TTL, shared by all replicas.
type RedisDeduper struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisDeduper(client redis.Cmdable, prefix string, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, prefix: prefix + "webhook:", ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("confirmation: dedupe claim: %w", err)
	}
	return ok, nil
}

func (d *RedisDeduper) Forget(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("confirmation: dedupe forget: %w", err)
	}
	return nil
}

// MemoryDeduper is a bounded in-process deduper with per-key expiry.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

func NewMemoryDeduper(size int, ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{seen: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (d *MemoryDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen.Contains(key) {
		return false, nil
	}
	d.seen.Add(key, struct{}{})
	return true, nil
}

func (d *MemoryDeduper) Forget(_ context.Context, key string) error {
	d.seen.Remove(key)
	return nil
}
