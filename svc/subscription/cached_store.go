package subscription

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedStore serves Get from a bounded LRU with TTL and writes through to
// the underlying Store. Other instances' writes become visible after the TTL.
type CachedStore struct {
	Store
	cache *expirable.LRU[string, *Subscription]
}

// NewCachedStore wraps store with a cache of at most size entries kept for ttl.
func NewCachedStore(store Store, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = 1024
	}
	return &CachedStore{
		Store: store,
		cache: expirable.NewLRU[string, *Subscription](size, nil, ttl),
	}
}

func (c *CachedStore) Get(ctx context.Context, userID string) (*Subscription, error) {
	if s, ok := c.cache.Get(userID); ok {
		return s.Clone(), nil
	}
	s, err := c.Store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(userID, s.Clone())
	return s, nil
}

func (c *CachedStore) Create(ctx context.Context, s *Subscription) error {
	if err := c.Store.Create(ctx, s); err != nil {
		return err
	}
	c.cache.Add(s.UserID, s.Clone())
	return nil
}

func (c *CachedStore) Update(ctx context.Context, userID string, fn func(*Subscription) error) (*Subscription, error) {
	s, err := c.Store.Update(ctx, userID, fn)
	if err != nil {
		c.cache.Remove(userID)
		return nil, err
	}
	c.cache.Add(userID, s.Clone())
	return s, nil
}

// Invalidate drops the cached copy of userID.
func (c *CachedStore) Invalidate(userID string) {
	c.cache.Remove(userID)
}
