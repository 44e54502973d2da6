package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript adds ARGV[1] hits and starts the window TTL on the first
// hit, returning the count and the remaining TTL in milliseconds.
var incrementScript = redis.NewScript(`
local count = redis.call("INCRBY", KEYS[1], ARGV[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
return {count, ttl}
`)

// RedisStore keeps counters in Redis, expiring each with its window.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisStore builds a store whose keys are prefix+"ratelimit:"+key.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix + "ratelimit:", now: time.Now}
}

func (s *RedisStore) Increment(ctx context.Context, key string, n int, window time.Duration) (int, time.Time, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{s.prefix + key}, n, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, errors.Join(ErrStoreUnavailable, err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("%w: unexpected script reply %v", ErrStoreUnavailable, res)
	}
	return int(res[0]), s.now().Add(time.Duration(res[1]) * time.Millisecond), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
