package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitle/pkg/logger"
	"github.com/dmitrymomot/entitle/svc/notify"
	"github.com/dmitrymomot/entitle/svc/payment"
	"github.com/dmitrymomot/entitle/svc/plan"
	"github.com/dmitrymomot/entitle/svc/subscription"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg notify.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func newNotifier(t *testing.T) (*notify.Notifier, *mockSender) {
	t.Helper()
	sender := new(mockSender)
	t.Cleanup(func() { sender.AssertExpectations(t) })
	n := notify.New(sender, plan.Default(),
		notify.WithLogger(logger.Discard()),
		notify.WithConfig(notify.Config{SupportEmail: "help@example.com", Locale: "en"}))
	return n, sender
}

func TestNotifier_PaymentConfirmed(t *testing.T) {
	t.Parallel()
	n, sender := newNotifier(t)

	end := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	sub := &subscription.Subscription{UserID: "u1", Email: "ada@example.com", EndDate: &end}
	entry := subscription.BillingEntry{
		Date: time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC), Amount: 2900, Currency: "USD",
		Status: subscription.BillingPaid, TransactionID: "tx-42", PaymentMethod: payment.KindMTN,
		Plan: plan.Professional, BillingCycle: plan.Monthly,
	}

	sender.On("Send", mock.Anything, mock.MatchedBy(func(m notify.Message) bool {
		return m.To == "ada@example.com" &&
			m.Tag == "receipt" &&
			m.Subject == "Payment received: Professional" &&
			assert.Contains(t, m.HTMLBody, "29") &&
			assert.Contains(t, m.HTMLBody, "tx-42") &&
			assert.Contains(t, m.HTMLBody, "MTN Mobile Money") &&
			assert.Contains(t, m.HTMLBody, "July 10, 2026") &&
			assert.Contains(t, m.HTMLBody, "help@example.com")
	})).Return(nil).Once()

	require.NoError(t, n.PaymentConfirmed(context.Background(), sub, entry))
}

func TestNotifier_RenewalInitiated(t *testing.T) {
	t.Parallel()
	n, sender := newNotifier(t)

	sub := &subscription.Subscription{
		UserID: "u1", Email: "ada@example.com", Plan: plan.Professional,
		PaymentDetails: &subscription.PaymentDetails{Amount: 29000, Currency: "USD"},
	}
	h := payment.Handle{TransactionID: "txn_1", AuthorizationURL: "https://pay.example.com/txn_1"}

	sender.On("Send", mock.Anything, mock.MatchedBy(func(m notify.Message) bool {
		return m.Tag == "renewal" &&
			assert.Contains(t, m.HTMLBody, `href="https://pay.example.com/txn_1"`) &&
			assert.Contains(t, m.HTMLBody, "290")
	})).Return(nil).Once()

	require.NoError(t, n.RenewalInitiated(context.Background(), sub, h))
}

func TestNotifier_SubscriptionExpired(t *testing.T) {
	t.Parallel()
	n, sender := newNotifier(t)

	sub := &subscription.Subscription{
		UserID: "u1", Email: "ada@example.com", Plan: plan.Starter,
		UpdatedAt:      time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC),
		BillingHistory: []subscription.BillingEntry{{Plan: plan.Professional}},
	}

	sender.On("Send", mock.Anything, mock.MatchedBy(func(m notify.Message) bool {
		return m.Subject == "Your Professional subscription has ended" &&
			assert.Contains(t, m.HTMLBody, "June 10, 2026")
	})).Return(nil).Once()

	require.NoError(t, n.SubscriptionExpired(context.Background(), sub))
}

func TestNotifier_SkipsWithoutEmail(t *testing.T) {
	t.Parallel()
	n, _ := newNotifier(t)

	sub := &subscription.Subscription{UserID: "u1", Plan: plan.Professional}
	ctx := context.Background()
	assert.NoError(t, n.PaymentConfirmed(ctx, sub, subscription.BillingEntry{}))
	assert.NoError(t, n.RenewalInitiated(ctx, sub, payment.Handle{}))
	assert.NoError(t, n.SubscriptionExpired(ctx, sub))
}

func TestNotifier_SendFailure(t *testing.T) {
	t.Parallel()
	n, sender := newNotifier(t)

	sender.On("Send", mock.Anything, mock.Anything).Return(notify.ErrFailedToSend).Once()

	sub := &subscription.Subscription{UserID: "u1", Email: "ada@example.com", Plan: plan.Professional}
	err := n.SubscriptionExpired(context.Background(), sub)
	assert.True(t, errors.Is(err, notify.ErrFailedToSend))
}

func TestNotifier_UnknownPlanFallsBackToID(t *testing.T) {
	t.Parallel()
	n, sender := newNotifier(t)

	sender.On("Send", mock.Anything, mock.MatchedBy(func(m notify.Message) bool {
		return m.Subject == "Your legacy subscription has ended"
	})).Return(nil).Once()

	sub := &subscription.Subscription{UserID: "u1", Email: "ada@example.com", Plan: "legacy"}
	require.NoError(t, n.SubscriptionExpired(context.Background(), sub))
}
