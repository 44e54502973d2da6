package entitlement

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/entitle/svc/plan"
)

var (
	ErrLimitExceeded   = errors.New("entitlement: usage limit exceeded")
	ErrReserverFailure = errors.New("entitlement: reservation store failed")
	ErrCapacityChanged = errors.New("entitlement: capacity changed during admission")
)

// Denial reasons carried by LimitError.
const (
	ReasonQuotaExhausted = "quota_exhausted"
	ReasonNoAccess       = "subscription_inactive"
)

// LimitError reports a denied action with the numbers a client needs to
// explain it. It matches ErrLimitExceeded.
type LimitError struct {
	Metric    plan.Metric
	Limit     int64
	Remaining int64
	Reason    string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("entitlement: %s denied (%s): %d of %d remaining", e.Metric, e.Reason, e.Remaining, e.Limit)
}

func (e *LimitError) Unwrap() error {
	return ErrLimitExceeded
}
