package webhook_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/entitle/pkg/webhook"
)

func TestCircuitBreaker(t *testing.T) {
	now := time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC)
	cb := webhook.NewCircuitBreaker(3, 2, time.Minute).WithClock(func() time.Time { return now })

	for range 2 {
		assert.True(t, cb.Allow())
		cb.RecordFailure()
	}
	cb.RecordSuccess()
	assert.Equal(t, webhook.CircuitClosed, cb.State(), "success resets the failure streak")

	for range 3 {
		cb.RecordFailure()
	}
	assert.Equal(t, webhook.CircuitOpen, cb.State())
	assert.False(t, cb.Allow())

	now = now.Add(time.Minute)
	assert.Equal(t, webhook.CircuitHalfOpen, cb.State())
	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, webhook.CircuitOpen, cb.State(), "failure while half-open reopens")

	now = now.Add(time.Minute)
	assert.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, webhook.CircuitHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, webhook.CircuitClosed, cb.State())
	assert.Equal(t, "closed", cb.State().String())
}
