package subscription

import (
	"context"
	"time"
)

// Store persists subscriptions. Implementations return deep copies and must
// apply Update atomically with respect to other writers of the same user.
type Store interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, userID string) (*Subscription, error)
	// Update loads the record, applies fn and saves the result. When fn
	// returns an error nothing is written and the error is returned.
	Update(ctx context.Context, userID string, fn func(*Subscription) error) (*Subscription, error)
	// FindByReference resolves a payment reference to its subscription.
	FindByReference(ctx context.Context, reference string) (*Subscription, error)
	// ListDue returns subscriptions the sweeper must look at: lapsed trials,
	// active or cancelled terms ended before now, and payments pending since
	// before pendingBefore.
	ListDue(ctx context.Context, now, pendingBefore time.Time) ([]*Subscription, error)
}
