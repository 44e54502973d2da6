package confirmation_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitle/pkg/logger"
	"github.com/dmitrymomot/entitle/pkg/queue"
	"github.com/dmitrymomot/entitle/pkg/webhook"
	"github.com/dmitrymomot/entitle/svc/confirmation"
	"github.com/dmitrymomot/entitle/svc/payment"
	"github.com/dmitrymomot/entitle/svc/plan"
	"github.com/dmitrymomot/entitle/svc/subscription"
)

const secret = "whsec_test"

type mockPayments struct {
	mock.Mock
}

func (m *mockPayments) Initiate(ctx context.Context, method payment.Method, c payment.Charge) (payment.Handle, error) {
	args := m.Called(ctx, method, c)
	return args.Get(0).(payment.Handle), args.Error(1)
}

func (m *mockPayments) Verify(ctx context.Context, kind payment.Kind, id string) (payment.Status, error) {
	args := m.Called(ctx, kind, id)
	return args.Get(0).(payment.Status), args.Error(1)
}

type fixture struct {
	subs     *subscription.Service
	payments *mockPayments
	now      time.Time
}

// newFixture leaves user-1 in pending_payment for reference ref-1 / transaction tx-1.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{payments: new(mockPayments), now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	f.subs = subscription.NewService(subscription.NewMemoryStore(), plan.Default(), f.payments,
		subscription.WithClock(func() time.Time { return f.now }),
		subscription.WithLogger(logger.Discard()))

	ctx := context.Background()
	_, err := f.subs.Create(ctx, "user-1", "ada@example.com")
	require.NoError(t, err)

	f.payments.On("Initiate", mock.Anything, mock.Anything, mock.Anything).
		Return(payment.Handle{TransactionID: "tx-1", Reference: "ref-1"}, nil).Once()
	_, err = f.subs.Upgrade(ctx, subscription.UpgradeRequest{
		UserID:       "user-1",
		PlanID:       plan.Professional,
		BillingCycle: plan.Monthly,
		Method:       payment.MTNMethod{PhoneNumber: "+256700000001"},
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) handler(opts ...confirmation.Option) *confirmation.Handler {
	opts = append([]confirmation.Option{
		confirmation.WithLogger(logger.Discard()),
		confirmation.WithClock(func() time.Time { return f.now }),
	}, opts...)
	return confirmation.NewHandler(f.subs, opts...)
}

func (f *fixture) parser() *confirmation.SignedParser {
	return confirmation.NewSignedParser(secret, 5*time.Minute).WithClock(func() time.Time { return f.now })
}

func signedRequest(t *testing.T, body string, at time.Time) *http.Request {
	t.Helper()
	return delivery(t, body, at)()
}

// delivery signs body once and returns a factory for identical redeliveries.
func delivery(t *testing.T, body string, at time.Time) func() *http.Request {
	t.Helper()
	sig, err := webhook.Sign(secret, []byte(body), at)
	require.NoError(t, err)
	return func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewBufferString(body))
		sig.Apply(r.Header)
		return r
	}
}

func envelope(reference, identity, status string) string {
	return fmt.Sprintf(`{"event":"payment.updated","data":{"reference":%q,"customerIdentity":%q,"status":%q,"method":"mtn_momo"}}`,
		reference, identity, status)
}

func TestHandler_AcceptInline(t *testing.T) {
	t.Parallel()

	t.Run("verified push activates the subscription", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		defer f.payments.AssertExpectations(t)
		f.payments.On("Verify", mock.Anything, payment.KindMTN, "tx-1").Return(payment.StatusSuccess, nil).Once()

		h := f.handler()
		d, err := h.Accept(context.Background(), f.parser(), signedRequest(t, envelope("ref-1", "user-1", "success"), f.now))
		require.NoError(t, err)
		assert.False(t, d.Duplicate)
		assert.Equal(t, "ref-1", d.Notification.Reference)

		sub, err := f.subs.Get(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.Equal(t, plan.Monthly.Extend(f.now), *sub.EndDate)
	})

	t.Run("phone number identifies the customer", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.payments.On("Verify", mock.Anything, payment.KindMTN, "tx-1").Return(payment.StatusSuccess, nil).Once()

		_, err := f.handler().Accept(context.Background(), f.parser(),
			signedRequest(t, envelope("ref-1", "256700000001", "success"), f.now))
		require.NoError(t, err)

		sub, err := f.subs.Get(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
	})

	t.Run("duplicate delivery is acknowledged once", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		defer f.payments.AssertExpectations(t)
		f.payments.On("Verify", mock.Anything, payment.KindMTN, "tx-1").Return(payment.StatusSuccess, nil).Once()

		h := f.handler()
		redeliver := delivery(t, envelope("ref-1", "user-1", "success"), f.now)
		_, err := h.Accept(context.Background(), f.parser(), redeliver())
		require.NoError(t, err)

		d, err := h.Accept(context.Background(), f.parser(), redeliver())
		require.NoError(t, err)
		assert.True(t, d.Duplicate)

		sub, err := f.subs.Get(context.Background(), "user-1")
		require.NoError(t, err)
		paid := 0
		for _, e := range sub.BillingHistory {
			if e.Status == subscription.BillingPaid {
				paid++
			}
		}
		assert.Equal(t, 1, paid)
	})

	t.Run("bad signature changes nothing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		defer f.payments.AssertExpectations(t)

		r := signedRequest(t, envelope("ref-1", "user-1", "success"), f.now)
		r.Header.Set(webhook.HeaderSignature, "deadbeef")

		_, err := f.handler().Accept(context.Background(), f.parser(), r)
		assert.ErrorIs(t, err, confirmation.ErrInvalidSignature)

		sub, err := f.subs.Get(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusPendingPayment, sub.Status)
	})

	t.Run("stale timestamp is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.handler().Accept(context.Background(), f.parser(),
			signedRequest(t, envelope("ref-1", "user-1", "success"), f.now.Add(-time.Hour)))
		assert.ErrorIs(t, err, confirmation.ErrInvalidSignature)
	})

	t.Run("pending status is skipped", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		defer f.payments.AssertExpectations(t)
		d, err := f.handler().Accept(context.Background(), f.parser(),
			signedRequest(t, envelope("ref-1", "user-1", "pending"), f.now))
		require.NoError(t, err)
		assert.True(t, d.Skipped)
	})

	t.Run("identity mismatch is dropped", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		defer f.payments.AssertExpectations(t)
		_, err := f.handler().Accept(context.Background(), f.parser(),
			signedRequest(t, envelope("ref-1", "someone-else", "success"), f.now))
		require.NoError(t, err)

		sub, err := f.subs.Get(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusPendingPayment, sub.Status)
	})

	t.Run("malformed and oversized bodies", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.handler().Accept(context.Background(), f.parser(), signedRequest(t, `{"event":`, f.now))
		assert.ErrorIs(t, err, confirmation.ErrMalformedPayload)

		_, err = f.handler().Accept(context.Background(), f.parser(),
			signedRequest(t, `{"event":"x","data":{}}`, f.now))
		assert.ErrorIs(t, err, confirmation.ErrMissingReference)

		big := confirmation.WithConfig(confirmation.Config{MaxBodyBytes: 16})
		_, err = f.handler(big).Accept(context.Background(), f.parser(),
			signedRequest(t, envelope("ref-1", "user-1", "success"), f.now))
		assert.ErrorIs(t, err, confirmation.ErrPayloadTooLarge)
	})
}

func TestHandler_Process(t *testing.T) {
	t.Parallel()

	t.Run("provider outage is returned for retry", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.payments.On("Verify", mock.Anything, payment.KindMTN, "tx-1").
			Return(payment.Status(""), payment.ErrProviderUnavailable).Once()

		err := f.handler().Process(context.Background(), confirmation.ConfirmTask{
			Notification: confirmation.Notification{Reference: "ref-1", Status: "success"},
		})
		assert.ErrorIs(t, err, payment.ErrProviderUnavailable)
	})

	t.Run("unknown reference is retried", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		err := f.handler().Process(context.Background(), confirmation.ConfirmTask{
			Notification: confirmation.Notification{Reference: "ref-unknown"},
		})
		assert.ErrorIs(t, err, subscription.ErrNotFound)
	})

	t.Run("missing reference is dropped", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		assert.NoError(t, f.handler().Process(context.Background(), confirmation.ConfirmTask{}))
	})
}

func TestHandler_Queued(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.payments.On("Verify", mock.Anything, payment.KindMTN, "tx-1").Return(payment.StatusSuccess, nil).Once()

	store := queue.NewMemoryStorage()
	enq, err := queue.NewEnqueuer(store)
	require.NoError(t, err)

	h := f.handler(confirmation.WithEnqueuer(enq))
	_, err = h.Accept(context.Background(), f.parser(), signedRequest(t, envelope("ref-1", "user-1", "success"), f.now))
	require.NoError(t, err)

	sub, err := f.subs.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPendingPayment, sub.Status, "nothing applied before the worker runs")

	w, err := queue.NewWorker(store, queue.WithWorkerLogger(logger.Discard()))
	require.NoError(t, err)
	require.NoError(t, w.RegisterHandlers(queue.NewTaskHandler(h.Process)))

	ok, err := w.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	sub, err = f.subs.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
}

type failingEnqueuer struct{}

func (failingEnqueuer) Enqueue(context.Context, any, ...queue.EnqueueOption) error {
	return errors.New("queue down")
}

func TestHandler_EnqueueFailureReleasesDedupe(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	defer f.payments.AssertExpectations(t)
	f.payments.On("Verify", mock.Anything, payment.KindMTN, "tx-1").Return(payment.StatusSuccess, nil).Once()

	dedupe := confirmation.NewMemoryDeduper(10, time.Hour)
	redeliver := delivery(t, envelope("ref-1", "user-1", "success"), f.now)

	_, err := f.handler(confirmation.WithEnqueuer(failingEnqueuer{}), confirmation.WithDeduper(dedupe)).
		Accept(context.Background(), f.parser(), redeliver())
	require.Error(t, err)

	d, err := f.handler(confirmation.WithDeduper(dedupe)).Accept(context.Background(), f.parser(), redeliver())
	require.NoError(t, err)
	assert.False(t, d.Duplicate, "the provider's retry is accepted")

	sub, err := f.subs.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
}

func TestRedisDeduper(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	d := confirmation.NewRedisDeduper(client, "entitle:", time.Minute)
	ctx := context.Background()

	first, err := d.Claim(ctx, "k")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = d.Claim(ctx, "k")
	require.NoError(t, err)
	assert.False(t, first)
	assert.True(t, mr.Exists("entitle:webhook:k"))

	mr.FastForward(2 * time.Minute)
	first, err = d.Claim(ctx, "k")
	require.NoError(t, err)
	assert.True(t, first)

	require.NoError(t, d.Forget(ctx, "k"))
	assert.False(t, mr.Exists("entitle:webhook:k"))
}

func paddleSignature(body string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + ":" + body))
	return "ts=" + ts + ";h1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestPaddleParser(t *testing.T) {
	t.Parallel()

	p := confirmation.NewPaddleParser(secret)
	body := `{"event_id":"evt_1","event_type":"transaction.completed","data":{"id":"txn_1","status":"completed",` +
		`"custom_data":{"reference":"ref-9","user_id":"user-9"}}}`

	r := httptest.NewRequest(http.MethodPost, "/payments/webhook/paddle", nil)
	r.Header.Set("Paddle-Signature", paddleSignature(body, time.Now()))

	n, err := p.Parse(r, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, confirmation.Notification{
		ID:               "evt_1",
		Source:           "paddle",
		Event:            "transaction.completed",
		Method:           payment.KindCard,
		Reference:        "ref-9",
		CustomerIdentity: "user-9",
		TransactionID:    "txn_1",
		Status:           "success",
	}, n)

	r.Header.Set("Paddle-Signature", paddleSignature(body+" ", time.Now()))
	_, err = p.Parse(r, []byte(body))
	assert.ErrorIs(t, err, confirmation.ErrInvalidSignature)

	other := `{"event_type":"customer.updated","data":{}}`
	r.Header.Set("Paddle-Signature", paddleSignature(other, time.Now()))
	_, err = p.Parse(r, []byte(other))
	assert.ErrorIs(t, err, confirmation.ErrMalformedPayload)
}
