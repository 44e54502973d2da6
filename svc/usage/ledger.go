package usage

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/dmitrymomot/entitle/pkg/logger"
	"github.com/dmitrymomot/entitle/svc/plan"
)

// Ledger records metered actions and answers aggregate queries.
type Ledger struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.logger = log
		}
	}
}

func NewLedger(store Store, opts ...Option) *Ledger {
	if store == nil {
		panic("usage: store is required")
	}
	l := &Ledger{store: store, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the ledger's current time.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// RecordUsage appends an event to today's record of userID.
func (l *Ledger) RecordUsage(ctx context.Context, userID string, metric plan.Metric, amount int64, meta Metadata) (Event, error) {
	if userID == "" {
		return Event{}, ErrMissingUserID
	}
	if !metric.Valid() {
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}
	if amount <= 0 {
		return Event{}, ErrInvalidAmount
	}

	now := l.now().UTC()
	e := Event{
		Amount:     amount,
		Tokens:     meta.Tokens,
		Storage:    meta.Storage,
		Attributes: maps.Clone(meta.Attributes),
		At:         now,
	}

	if err := l.store.Append(ctx, userID, Day(now), metric, e); err != nil {
		return Event{}, fmt.Errorf("record %s usage: %w", metric, err)
	}

	l.logger.DebugContext(ctx, "usage recorded",
		logger.UserID(userID),
		logger.Metric(string(metric)),
		slog.Int64("amount", amount))

	return e, nil
}

// AggregateUsage sums metric usage of userID from the day containing since up to and including today.
func (l *Ledger) AggregateUsage(ctx context.Context, userID string, metric plan.Metric, since time.Time) (int64, error) {
	if !metric.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}
	to := Day(l.now()).AddDate(0, 0, 1)
	return l.store.Sum(ctx, userID, metric, Day(since), to)
}

// CurrentUsage sums metric usage in the current billing period.
func (l *Ledger) CurrentUsage(ctx context.Context, userID string, metric plan.Metric) (int64, error) {
	return l.AggregateUsage(ctx, userID, metric, PeriodStart(l.now()))
}

// Summary reports every metric for the current billing period.
func (l *Ledger) Summary(ctx context.Context, userID string) (Summary, error) {
	now := l.now()
	start := PeriodStart(now)

	records, err := l.store.Records(ctx, userID, start, Day(now).AddDate(0, 0, 1))
	if err != nil {
		return Summary{}, fmt.Errorf("usage summary: %w", err)
	}

	sum := Summary{PeriodStart: start, Usage: make(map[plan.Metric]int64, len(plan.Metrics))}
	for _, m := range plan.Metrics {
		sum.Usage[m] = 0
	}
	for i := range records {
		for _, m := range plan.Metrics {
			sum.Usage[m] += records[i].Count(m)
		}
		sum.TotalTokensUsed += records[i].TotalTokensUsed
		sum.TotalStorageUsed += records[i].TotalStorageUsed
	}
	return sum, nil
}
