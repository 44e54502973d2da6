package entitlement

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/entitle/svc/plan"
)

// Reserver holds in-flight usage per user and metric. Each counter carries a
// version that every Release advances, so an admission computed from a usage
// read can be rejected when a concurrent holder settled in the meantime.
type Reserver interface {
	// Version returns the counter version. Read it before reading usage.
	Version(ctx context.Context, userID string, metric plan.Metric) (int64, error)
	// Acquire adds amount to the in-flight total if the counter is still at
	// version and the result stays within capacity, reporting whether it
	// did. A moved version yields ErrCapacityChanged.
	Acquire(ctx context.Context, userID string, metric plan.Metric, amount, capacity, version int64) (bool, error)
	// Release subtracts amount from the in-flight total and advances the
	// version.
	Release(ctx context.Context, userID string, metric plan.Metric, amount int64) error
}

const reserverShards = 64

type counter struct {
	inflight int64
	version  int64
}

// MemoryReserver keeps in-flight counters in process memory, spread over
// lock shards so unrelated users do not contend.
type MemoryReserver struct {
	shards [reserverShards]struct {
		mu       sync.Mutex
		counters map[string]*counter
	}
}

func NewMemoryReserver() *MemoryReserver {
	r := &MemoryReserver{}
	for i := range r.shards {
		r.shards[i].counters = make(map[string]*counter)
	}
	return r
}

// with runs fn on the counter for userID and metric under its shard lock.
func (r *MemoryReserver) with(userID string, metric plan.Metric, fn func(*counter)) {
	key := reservationKey(userID, metric)
	s := &r.shards[shardOf(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[key]
	if !ok {
		c = &counter{}
		s.counters[key] = c
	}
	fn(c)
}

func (r *MemoryReserver) Version(_ context.Context, userID string, metric plan.Metric) (int64, error) {
	var v int64
	r.with(userID, metric, func(c *counter) { v = c.version })
	return v, nil
}

func (r *MemoryReserver) Acquire(_ context.Context, userID string, metric plan.Metric, amount, capacity, version int64) (bool, error) {
	var (
		ok  bool
		err error
	)
	r.with(userID, metric, func(c *counter) {
		switch {
		case c.version != version:
			err = ErrCapacityChanged
		case c.inflight+amount > capacity:
		default:
			c.inflight += amount
			ok = true
		}
	})
	return ok, err
}

func (r *MemoryReserver) Release(_ context.Context, userID string, metric plan.Metric, amount int64) error {
	r.with(userID, metric, func(c *counter) {
		c.inflight = max(0, c.inflight-amount)
		c.version++
	})
	return nil
}

// InFlight returns the held amount for userID and metric.
func (r *MemoryReserver) InFlight(userID string, metric plan.Metric) int64 {
	var n int64
	r.with(userID, metric, func(c *counter) { n = c.inflight })
	return n
}

func shardOf(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % reserverShards
}

func reservationKey(userID string, metric plan.Metric) string {
	return userID + ":" + string(metric)
}

var (
	versionScript = redis.NewScript(`
return tonumber(redis.call('HGET', KEYS[1], 'v') or '0')
`)
	acquireScript = redis.NewScript(`
if tonumber(redis.call('HGET', KEYS[1], 'v') or '0') ~= tonumber(ARGV[4]) then
  return -1
end
local cur = tonumber(redis.call('HGET', KEYS[1], 'n') or '0')
if cur + tonumber(ARGV[1]) > tonumber(ARGV[2]) then
  return 0
end
redis.call('HINCRBY', KEYS[1], 'n', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)
	releaseScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], 'n', '-' .. ARGV[1])
if n < 0 then
  redis.call('HSET', KEYS[1], 'n', '0')
end
redis.call('HINCRBY', KEYS[1], 'v', '1')
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return n
`)
)

// RedisReserver keeps in-flight counters in Redis hashes so every instance
// shares them. A counter expires ttl after its last change, so a crashed
// holder cannot leak capacity.
type RedisReserver struct {
	client redis.Scripter
	prefix string
	ttl    time.Duration
}

func NewRedisReserver(client redis.Scripter, prefix string, ttl time.Duration) *RedisReserver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisReserver{client: client, prefix: prefix + "reserve:", ttl: ttl}
}

func (r *RedisReserver) key(userID string, metric plan.Metric) []string {
	return []string{r.prefix + reservationKey(userID, metric)}
}

func (r *RedisReserver) Version(ctx context.Context, userID string, metric plan.Metric) (int64, error) {
	return versionScript.Run(ctx, r.client, r.key(userID, metric)).Int64()
}

func (r *RedisReserver) Acquire(ctx context.Context, userID string, metric plan.Metric, amount, capacity, version int64) (bool, error) {
	n, err := acquireScript.Run(ctx, r.client, r.key(userID, metric),
		amount, capacity, r.ttl.Milliseconds(), version).Int64()
	switch {
	case err != nil:
		return false, err
	case n < 0:
		return false, ErrCapacityChanged
	}
	return n == 1, nil
}

func (r *RedisReserver) Release(ctx context.Context, userID string, metric plan.Metric, amount int64) error {
	return releaseScript.Run(ctx, r.client, r.key(userID, metric),
		strconv.FormatInt(amount, 10), r.ttl.Milliseconds()).Err()
}
