package payment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestTokenCache(t *testing.T) {
	t.Parallel()

	t.Run("caches until skew before expiry", func(t *testing.T) {
		t.Parallel()
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		var calls atomic.Int32
		c := NewTokenCache(func(context.Context) (*oauth2.Token, error) {
			n := calls.Add(1)
			return &oauth2.Token{AccessToken: string(rune('a' + n - 1)), Expiry: now.Add(time.Minute)}, nil
		}, 30*time.Second)
		c.now = func() time.Time { return now }

		tok, err := c.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "a", tok)

		now = now.Add(29 * time.Second)
		tok, _ = c.Token(context.Background())
		assert.Equal(t, "a", tok)

		now = now.Add(2 * time.Second)
		tok, _ = c.Token(context.Background())
		assert.Equal(t, "b", tok)
		assert.EqualValues(t, 2, calls.Load())
	})

	t.Run("concurrent callers share one fetch", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		release := make(chan struct{})
		c := NewTokenCache(func(context.Context) (*oauth2.Token, error) {
			calls.Add(1)
			<-release
			return &oauth2.Token{AccessToken: "shared", Expiry: time.Now().Add(time.Hour)}, nil
		}, time.Second)

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tok, err := c.Token(context.Background())
				assert.NoError(t, err)
				assert.Equal(t, "shared", tok)
			}()
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("invalidate only drops the stale token", func(t *testing.T) {
		t.Parallel()
		c := NewTokenCache(func(context.Context) (*oauth2.Token, error) {
			return &oauth2.Token{AccessToken: "fresh"}, nil
		}, 0)
		_, err := c.Token(context.Background())
		require.NoError(t, err)

		c.Invalidate("old")
		_, ok := c.current()
		assert.True(t, ok)

		c.Invalidate("fresh")
		_, ok = c.current()
		assert.False(t, ok)
	})

	t.Run("fetch error", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		c := NewTokenCache(func(context.Context) (*oauth2.Token, error) { return nil, boom }, 0)
		_, err := c.Token(context.Background())
		assert.ErrorIs(t, err, boom)
	})
}
