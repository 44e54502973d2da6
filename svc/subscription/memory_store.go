package subscription

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps subscriptions in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	subs map[string]*Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]*Subscription)}
}

func (m *MemoryStore) Create(_ context.Context, s *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[s.UserID]; ok {
		return ErrAlreadyExists
	}
	m.subs[s.UserID] = s.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, userID string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, userID string, fn func(*Subscription) error) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.subs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	m.subs[userID] = next
	return next.Clone(), nil
}

func (m *MemoryStore) FindByReference(_ context.Context, reference string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.PaymentDetails != nil && s.PaymentDetails.Reference == reference {
			return s.Clone(), nil
		}
		for _, e := range s.BillingHistory {
			if e.Reference == reference {
				return s.Clone(), nil
			}
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListDue(_ context.Context, now, pendingBefore time.Time) ([]*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Subscription
	for _, s := range m.subs {
		if due(s, now, pendingBefore) {
			out = append(out, s.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *Subscription) int { return cmp.Compare(a.UserID, b.UserID) })
	return out, nil
}

// due mirrors the ListDue predicate.
func due(s *Subscription, now, pendingBefore time.Time) bool {
	if s.Status == StatusPendingPayment {
		return s.PaymentDetails != nil && s.PaymentDetails.InitiatedAt.Before(pendingBefore)
	}
	return s.Lapsed(now)
}
