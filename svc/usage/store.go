package usage

import (
	"context"
	"time"

	"github.com/dmitrymomot/entitle/svc/plan"
)

// Store persists daily usage records.
//
// Day arguments are midnight UTC. Range bounds are half-open: from <= day < to.
type Store interface {
	// Append adds e to the record of (userID, day), creating the record if needed.
	Append(ctx context.Context, userID string, day time.Time, metric plan.Metric, e Event) error
	// Sum adds the amounts of metric events in range.
	Sum(ctx context.Context, userID string, metric plan.Metric, from, to time.Time) (int64, error)
	// Records returns the records in range ordered by day.
	Records(ctx context.Context, userID string, from, to time.Time) ([]Record, error)
}
