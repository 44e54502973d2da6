// Package sweeper reconciles time-based subscription transitions that no
// request triggers: lapsed trials and terms, automatic renewals and payments
// left pending for too long.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/entitle/pkg/logger"
	"github.com/dmitrymomot/entitle/pkg/metrics"
	"github.com/dmitrymomot/entitle/svc/payment"
	"github.com/dmitrymomot/entitle/svc/subscription"
)

// TaskName is the periodic queue task that runs the sweep.
const TaskName = "billing.sweep"

type Config struct {
	Schedule       string        `env:"SWEEPER_SCHEDULE" envDefault:"*/15 * * * *"`
	PendingTimeout time.Duration `env:"SWEEPER_PENDING_TIMEOUT" envDefault:"24h"`
}

// Lister finds subscriptions due for reconciliation.
type Lister interface {
	ListDue(ctx context.Context, now, pendingBefore time.Time) ([]*subscription.Subscription, error)
}

// Lifecycle applies the transitions.
type Lifecycle interface {
	Expire(ctx context.Context, userID string, from subscription.Status) (bool, error)
	Abandon(ctx context.Context, userID string) (subscription.Status, error)
	Renew(ctx context.Context, userID string) (*payment.Handle, error)
	ConfirmPayment(ctx context.Context, userID, transactionID string, kind payment.Kind) (*subscription.Result, error)
}

// Report counts what one run did.
type Report struct {
	Scanned   int `json:"scanned"`
	Expired   int `json:"expired"`
	Renewed   int `json:"renewed"`
	Confirmed int `json:"confirmed"`
	Resumed   int `json:"resumed"`
	Deferred  int `json:"deferred"`
	Failed    int `json:"failed"`
}

type Sweeper struct {
	due            Lister
	subs           Lifecycle
	pendingTimeout time.Duration
	metrics        *metrics.Metrics
	logger         *slog.Logger
	now            func() time.Time
}

type Option func(*Sweeper)

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func WithPendingTimeout(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.pendingTimeout = d
		}
	}
}

func New(due Lister, subs Lifecycle, opts ...Option) *Sweeper {
	s := &Sweeper{
		due:            due,
		subs:           subs,
		pendingTimeout: 24 * time.Hour,
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("sweeper"))
	return s
}

// Run makes one pass. Failures on individual subscriptions are logged and
// counted; only a failure to list returns an error.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	now := s.now().UTC()
	subs, err := s.due.ListDue(ctx, now, now.Add(-s.pendingTimeout))
	if err != nil {
		return Report{}, fmt.Errorf("sweeper: list due subscriptions: %w", err)
	}

	var rep Report
	for _, sub := range subs {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Scanned++
		s.sweep(ctx, sub, &rep)
	}
	return rep, nil
}

// Task adapts Run to a periodic queue handler.
func (s *Sweeper) Task(ctx context.Context) error {
	start := time.Now()
	rep, err := s.Run(ctx)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "sweep finished",
		slog.Int("scanned", rep.Scanned),
		slog.Int("expired", rep.Expired),
		slog.Int("renewed", rep.Renewed),
		slog.Int("confirmed", rep.Confirmed),
		slog.Int("resumed", rep.Resumed),
		slog.Int("deferred", rep.Deferred),
		slog.Int("failed", rep.Failed),
		logger.Duration(time.Since(start)))
	return nil
}

func (s *Sweeper) sweep(ctx context.Context, sub *subscription.Subscription, rep *Report) {
	log := s.logger.With(logger.UserID(sub.UserID), logger.Status(string(sub.Status)))

	switch sub.Status {
	case subscription.StatusActive:
		if sub.AutoRenew {
			s.renew(ctx, log, sub, rep)
			return
		}
		s.expire(ctx, log, sub.UserID, sub.Status, rep)
	case subscription.StatusTrial, subscription.StatusCancelled:
		s.expire(ctx, log, sub.UserID, sub.Status, rep)
	case subscription.StatusPendingPayment:
		s.settle(ctx, log, sub, rep)
	}
}

func (s *Sweeper) renew(ctx context.Context, log *slog.Logger, sub *subscription.Subscription, rep *Report) {
	h, err := s.subs.Renew(ctx, sub.UserID)
	switch {
	case err == nil:
		rep.Renewed++
		s.metrics.SweeperTransition(string(subscription.StatusActive), string(subscription.StatusPendingPayment))
		log.InfoContext(ctx, "renewal charge initiated", logger.TransactionID(h.TransactionID))
	case errors.Is(err, subscription.ErrNotDue):
	default:
		// A declined or impossible renewal must not leave a stale active state.
		log.WarnContext(ctx, "renewal failed, expiring", logger.Error(err))
		s.expire(ctx, log, sub.UserID, subscription.StatusActive, rep)
	}
}

// settle verifies a payment pending past the timeout once: success confirms,
// anything but a provider outage abandons the charge.
func (s *Sweeper) settle(ctx context.Context, log *slog.Logger, sub *subscription.Subscription, rep *Report) {
	if sub.PaymentDetails == nil || sub.PaymentDetails.TransactionID == "" {
		s.abandon(ctx, log, sub.UserID, rep)
		return
	}
	txID := sub.PaymentDetails.TransactionID

	res, err := s.subs.ConfirmPayment(ctx, sub.UserID, txID, sub.PaymentMethod)
	switch {
	case err == nil && res.Status == payment.StatusSuccess:
		rep.Confirmed++
		s.metrics.SweeperTransition(string(subscription.StatusPendingPayment), string(subscription.StatusActive))
		log.InfoContext(ctx, "pending payment confirmed", logger.TransactionID(txID))
		return
	case payment.IsTransient(err):
		rep.Deferred++
		log.WarnContext(ctx, "pending payment not verifiable, retrying next run", logger.TransactionID(txID), logger.Error(err))
		return
	case err != nil:
		log.WarnContext(ctx, "pending payment verification failed", logger.TransactionID(txID), logger.Error(err))
	}
	s.abandon(ctx, log, sub.UserID, rep)
}

// abandon drops an unconfirmed charge. A trial or paid term it interrupted
// resumes; otherwise the subscription expires.
func (s *Sweeper) abandon(ctx context.Context, log *slog.Logger, userID string, rep *Report) {
	to, err := s.subs.Abandon(ctx, userID)
	switch {
	case err != nil:
		rep.Failed++
		log.ErrorContext(ctx, "failed to abandon pending payment", logger.Error(err))
		return
	case to == "":
		return
	case to == subscription.StatusInactive:
		rep.Expired++
		log.InfoContext(ctx, "subscription expired")
	default:
		rep.Resumed++
		log.InfoContext(ctx, "pending payment abandoned, previous term resumed", slog.String("resumed", string(to)))
	}
	s.metrics.SweeperTransition(string(subscription.StatusPendingPayment), string(to))
}

func (s *Sweeper) expire(ctx context.Context, log *slog.Logger, userID string, from subscription.Status, rep *Report) {
	changed, err := s.subs.Expire(ctx, userID, from)
	if err != nil {
		rep.Failed++
		log.ErrorContext(ctx, "failed to expire subscription", logger.Error(err))
		return
	}
	if !changed {
		return
	}
	rep.Expired++
	s.metrics.SweeperTransition(string(from), string(subscription.StatusInactive))
	log.InfoContext(ctx, "subscription expired")
}
