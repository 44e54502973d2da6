package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from  Status
		event Event
		to    Status
		ok    bool
	}{
		{StatusTrial, EventUpgradeFree, StatusActive, true},
		{StatusTrial, EventUpgradePaid, StatusPendingPayment, true},
		{StatusActive, EventRenew, StatusPendingPayment, true},
		{StatusPendingPayment, EventPaymentConfirmed, StatusActive, true},
		{StatusInactive, EventPaymentConfirmed, StatusActive, true},
		{StatusTrial, EventPaymentConfirmed, StatusActive, true},
		{StatusPendingPayment, EventResumeTrial, StatusTrial, true},
		{StatusPendingPayment, EventResumeActive, StatusActive, true},
		{StatusPendingPayment, EventResumeCancelled, StatusCancelled, true},
		{StatusActive, EventResumeActive, "", false},
		{StatusActive, EventCancel, StatusCancelled, true},
		{StatusInactive, EventCancel, "", false},
		{StatusCancelled, EventCancel, "", false},
		{StatusPendingPayment, EventExpire, StatusInactive, true},
		{StatusInactive, EventExpire, "", false},
		{StatusInactive, EventUpgradePaid, StatusPendingPayment, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			s := &Subscription{Status: tt.from}
			from, err := fire(s, tt.event)
			assert.Equal(t, tt.from, from)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, s.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, s.Status)
		})
	}
}
