package payment

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// TokenFetcher obtains a fresh access token from a provider.
type TokenFetcher func(ctx context.Context) (*oauth2.Token, error)

// TokenCache keeps a provider access token and refreshes it shortly before it
// expires. Concurrent callers share a single refresh.
type TokenCache struct {
	fetch TokenFetcher
	skew  time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	token *oauth2.Token
	group singleflight.Group
}

// NewTokenCache creates a cache that treats a token as expired skew before its expiry.
func NewTokenCache(fetch TokenFetcher, skew time.Duration) *TokenCache {
	return &TokenCache{fetch: fetch, skew: skew, now: time.Now}
}

// Token returns a valid access token, fetching one when needed.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.current(); ok {
		return tok, nil
	}

	v, err, _ := c.group.Do("token", func() (any, error) {
		if tok, ok := c.current(); ok {
			return tok, nil
		}
		// A canceled caller must not fail the callers sharing this refresh.
		t, err := c.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.token = t
		c.mu.Unlock()
		return t.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token if it is still the given stale one.
func (c *TokenCache) Invalidate(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil && c.token.AccessToken == stale {
		c.token = nil
	}
}

func (c *TokenCache) current() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil || c.token.AccessToken == "" {
		return "", false
	}
	if !c.token.Expiry.IsZero() && !c.now().Add(c.skew).Before(c.token.Expiry) {
		return "", false
	}
	return c.token.AccessToken, true
}
