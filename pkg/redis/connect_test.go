package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitle/pkg/redis"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := redis.Connect(context.Background(), redis.Config{
		ConnectionURL:  "redis://" + mr.Addr() + "/0",
		RetryAttempts:  1,
		RetryInterval:  10 * time.Millisecond,
		ConnectTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.NoError(t, redis.Healthcheck(client)(context.Background()))

	mr.Close()
	assert.ErrorIs(t, redis.Healthcheck(client)(context.Background()), redis.ErrHealthcheckFailed)
}

func TestConnectInvalidURL(t *testing.T) {
	_, err := redis.Connect(context.Background(), redis.Config{
		ConnectionURL:  "://bad",
		ConnectTimeout: time.Second,
	})
	assert.ErrorIs(t, err, redis.ErrFailedToParseRedisConnString)
}

func TestConnectUnreachable(t *testing.T) {
	_, err := redis.Connect(context.Background(), redis.Config{
		ConnectionURL:  "redis://127.0.0.1:1/0",
		RetryAttempts:  2,
		RetryInterval:  10 * time.Millisecond,
		ConnectTimeout: 500 * time.Millisecond,
	})
	assert.ErrorIs(t, err, redis.ErrRedisNotReady)
}
