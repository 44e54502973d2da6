package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/entitle/pkg/logger"
	"github.com/dmitrymomot/entitle/pkg/metrics"
	"github.com/dmitrymomot/entitle/svc/plan"
	"github.com/dmitrymomot/entitle/svc/subscription"
	"github.com/dmitrymomot/entitle/svc/usage"
)

// Unbounded is reported as Remaining for unlimited metrics.
const Unbounded int64 = -1

// Subscriptions reads subscription snapshots.
type Subscriptions interface {
	Get(ctx context.Context, userID string) (*subscription.Subscription, error)
}

// Usage reads and appends metered usage.
type Usage interface {
	CurrentUsage(ctx context.Context, userID string, metric plan.Metric) (int64, error)
	RecordUsage(ctx context.Context, userID string, metric plan.Metric, amount int64, meta usage.Metadata) (usage.Event, error)
}

// Result is the answer to an entitlement check.
type Result struct {
	Allowed   bool        `json:"allowed"`
	Remaining int64       `json:"remaining"`
	Limit     int64       `json:"limit"`
	Used      int64       `json:"used"`
	Metric    plan.Metric `json:"metric"`
}

// Checker evaluates subscription limits against current-period usage.
type Checker struct {
	subs     Subscriptions
	usage    Usage
	reserver Reserver
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Checker.
type Option func(*Checker)

// WithReserver enables strict admission for Reserve and Guard.
func WithReserver(r Reserver) Option {
	return func(c *Checker) { c.reserver = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Checker) { c.metrics = m }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Checker) {
		if log != nil {
			c.logger = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

func NewChecker(subs Subscriptions, u Usage, opts ...Option) *Checker {
	c := &Checker{subs: subs, usage: u, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckUsageLimit reports whether userID may perform one more metric action.
func (c *Checker) CheckUsageLimit(ctx context.Context, userID string, metric plan.Metric) (Result, error) {
	res, _, err := c.evaluate(ctx, userID, metric)
	if err != nil {
		return Result{}, err
	}
	if !res.Allowed {
		c.denied(ctx, userID, metric)
	}
	return res, nil
}

// Limits reports every metric for userID.
func (c *Checker) Limits(ctx context.Context, userID string) ([]Result, error) {
	out := make([]Result, 0, len(plan.Metrics))
	for _, m := range plan.Metrics {
		res, _, err := c.evaluate(ctx, userID, m)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// RecordUsage appends usage after a successful downstream call.
func (c *Checker) RecordUsage(ctx context.Context, userID string, metric plan.Metric, amount int64, meta usage.Metadata) (usage.Event, error) {
	e, err := c.usage.RecordUsage(ctx, userID, metric, amount, meta)
	if err != nil {
		return usage.Event{}, err
	}
	c.metrics.UsageRecorded(string(metric), amount)
	return e, nil
}

// evaluate returns the check result and whether the subscription grants access.
func (c *Checker) evaluate(ctx context.Context, userID string, metric plan.Metric) (Result, bool, error) {
	if !metric.Valid() {
		return Result{}, false, fmt.Errorf("%w: %s", usage.ErrUnknownMetric, metric)
	}
	sub, err := c.subs.Get(ctx, userID)
	if err != nil {
		return Result{}, false, err
	}

	limit := sub.Limits.Limit(metric)
	res := Result{Metric: metric, Limit: limit}
	if !sub.HasAccess(c.now()) {
		return res, false, nil
	}

	used, err := c.usage.CurrentUsage(ctx, userID, metric)
	if err != nil {
		return Result{}, false, err
	}
	res.Used = used

	if limit == plan.Unlimited {
		res.Allowed, res.Remaining = true, Unbounded
		return res, true, nil
	}
	res.Remaining = max(0, limit-used)
	res.Allowed = used < limit
	return res, true, nil
}

func (c *Checker) denied(ctx context.Context, userID string, metric plan.Metric) {
	c.metrics.EntitlementDenied(string(metric))
	c.logger.DebugContext(ctx, "entitlement denied", logger.UserID(userID), logger.Metric(string(metric)))
}
