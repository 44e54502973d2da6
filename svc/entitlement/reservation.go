package entitlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrymomot/entitle/pkg/logger"
	"github.com/dmitrymomot/entitle/svc/plan"
	"github.com/dmitrymomot/entitle/svc/usage"
)

// Reservation is admitted capacity for one metered action.
type Reservation struct {
	c      *Checker
	userID string
	metric plan.Metric
	amount int64
	held   bool
	once   sync.Once

	// Result is the check the reservation was admitted on.
	Result Result
}

// admissionAttempts bounds retries when concurrent holders keep settling
// between the usage read and the acquire.
const admissionAttempts = 8

// Reserve admits amount units of metric for userID or returns a *LimitError.
// With a Reserver configured, concurrent reservations cannot together exceed
// the limit; without one admission falls back to the plain check.
func (c *Checker) Reserve(ctx context.Context, userID string, metric plan.Metric, amount int64) (*Reservation, error) {
	if amount <= 0 {
		return nil, usage.ErrInvalidAmount
	}
	for range admissionAttempts {
		r, err := c.reserve(ctx, userID, metric, amount)
		if !errors.Is(err, ErrCapacityChanged) {
			return r, err
		}
	}
	return nil, errors.Join(ErrReserverFailure, ErrCapacityChanged)
}

func (c *Checker) reserve(ctx context.Context, userID string, metric plan.Metric, amount int64) (*Reservation, error) {
	var version int64
	if c.reserver != nil {
		v, err := c.reserver.Version(ctx, userID, metric)
		if err != nil {
			return nil, errors.Join(ErrReserverFailure, err)
		}
		version = v
	}

	res, access, err := c.evaluate(ctx, userID, metric)
	if err != nil {
		return nil, err
	}
	if !access {
		c.denied(ctx, userID, metric)
		return nil, &LimitError{Metric: metric, Limit: res.Limit, Remaining: 0, Reason: ReasonNoAccess}
	}

	r := &Reservation{c: c, userID: userID, metric: metric, amount: amount, Result: res}
	if res.Limit == plan.Unlimited {
		return r, nil
	}

	exhausted := &LimitError{Metric: metric, Limit: res.Limit, Remaining: res.Remaining, Reason: ReasonQuotaExhausted}
	if c.reserver == nil {
		if res.Used+amount > res.Limit {
			c.denied(ctx, userID, metric)
			return nil, exhausted
		}
		return r, nil
	}

	ok, err := c.reserver.Acquire(ctx, userID, metric, amount, res.Limit-res.Used, version)
	switch {
	case errors.Is(err, ErrCapacityChanged):
		return nil, err
	case err != nil:
		return nil, errors.Join(ErrReserverFailure, err)
	case !ok:
		c.denied(ctx, userID, metric)
		return nil, exhausted
	}
	r.held = true
	return r, nil
}

// Commit records the reserved usage and releases the reservation.
func (r *Reservation) Commit(ctx context.Context, meta usage.Metadata) (usage.Event, error) {
	e, err := r.c.RecordUsage(ctx, r.userID, r.metric, r.amount, meta)
	r.Release(ctx)
	return e, err
}

// Release returns the reserved capacity without recording usage. It is safe
// to call more than once.
func (r *Reservation) Release(ctx context.Context) {
	r.once.Do(func() {
		if !r.held {
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.c.reserver.Release(ctx, r.userID, r.metric, r.amount); err != nil {
			r.c.logger.WarnContext(ctx, "failed to release reservation",
				logger.UserID(r.userID), logger.Metric(string(r.metric)), logger.Error(err))
		}
	})
}
