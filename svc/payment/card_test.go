package payment

import (
	"context"
	"errors"
	"testing"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/PaddleHQ/paddle-go-sdk/v4/pkg/paddleerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTransactions struct {
	mock.Mock
}

func (m *mockTransactions) CreateTransaction(ctx context.Context, req *paddle.CreateTransactionRequest) (*paddle.Transaction, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paddle.Transaction), args.Error(1)
}

func (m *mockTransactions) GetTransaction(ctx context.Context, req *paddle.GetTransactionRequest) (*paddle.Transaction, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paddle.Transaction), args.Error(1)
}

func TestCardProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := CardConfig{PriceIDs: map[string]string{"professional:monthly": "pri_pro_m"}, CheckoutURL: "https://app.test/pay"}
	shared := Config{BreakerFailures: 2, BreakerSuccesses: 1}
	method := CardMethod{Email: "a@b.co"}
	charge := Charge{UserID: "u1", Reference: "ref-1", PlanID: "professional", Cycle: "monthly", Amount: 2900, Currency: "USD"}

	t.Run("initiate returns checkout url", func(t *testing.T) {
		t.Parallel()
		txns := &mockTransactions{}
		txns.On("CreateTransaction", mock.Anything, mock.MatchedBy(func(r *paddle.CreateTransactionRequest) bool {
			return r.CustomData["reference"] == "ref-1" && r.CustomData["user_id"] == "u1" && len(r.Items) == 1
		})).Return(&paddle.Transaction{
			ID:       "txn_1",
			Checkout: &paddle.TransactionCheckout{URL: paddle.PtrTo("https://pay.paddle.test/txn_1")},
		}, nil).Once()

		h, err := newCardProvider(cfg, txns, shared).Initiate(ctx, method, charge)
		require.NoError(t, err)
		assert.Equal(t, Handle{TransactionID: "txn_1", Reference: "ref-1", AuthorizationURL: "https://pay.paddle.test/txn_1"}, h)
		txns.AssertExpectations(t)
	})

	t.Run("missing price mapping", func(t *testing.T) {
		t.Parallel()
		c := charge
		c.Cycle = "yearly"
		_, err := newCardProvider(cfg, &mockTransactions{}, shared).Initiate(ctx, method, c)
		assert.ErrorIs(t, err, ErrProviderNotConfigured)
	})

	t.Run("sdk errors are transient", func(t *testing.T) {
		t.Parallel()
		txns := &mockTransactions{}
		txns.On("CreateTransaction", mock.Anything, mock.Anything).Return(nil, errors.New("502")).Times(2)
		p := newCardProvider(cfg, txns, shared)

		for range 2 {
			_, err := p.Initiate(ctx, method, charge)
			assert.ErrorIs(t, err, ErrProviderUnavailable)
		}
		_, err := p.Initiate(ctx, method, charge)
		assert.ErrorIs(t, err, ErrProviderUnavailable)
		txns.AssertExpectations(t)
	})

	t.Run("request errors reject without tripping the breaker", func(t *testing.T) {
		t.Parallel()
		invalid := &paddleerr.Error{
			Type:   paddleerr.ErrorTypeRequestError,
			Code:   "invalid_field",
			Detail: "Invalid request.",
			Errors: []paddleerr.ValidationError{{Field: "items[0].price_id", Message: "price is archived"}},
		}
		txns := &mockTransactions{}
		txns.On("CreateTransaction", mock.Anything, mock.Anything).Return(nil, invalid).Times(3)
		p := newCardProvider(cfg, txns, shared)

		for range 3 {
			_, err := p.Initiate(ctx, method, charge)
			assert.ErrorIs(t, err, ErrPaymentRejected)
			assert.NotErrorIs(t, err, ErrProviderUnavailable)
		}
		txns.AssertExpectations(t)
	})

	t.Run("paddle errors are classified", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			name string
			err  error
			want []error
		}{
			{"not found", paddle.ErrNotFound, []error{ErrTransactionNotFound}},
			{"bad credentials", paddle.ErrAuthenticationMalformed, []error{ErrProviderUnavailable, ErrAuthentication}},
			{"forbidden", paddle.ErrForbidden, []error{ErrProviderUnavailable, ErrAuthentication}},
			{"rate limited", paddle.ErrTooManyRequests, []error{ErrProviderUnavailable}},
			{"server error", paddle.ErrInternalError, []error{ErrProviderUnavailable}},
			{"concurrent edit", paddle.ErrConcurrentModification, []error{ErrProviderUnavailable}},
			{"immutable", paddle.ErrTransactionImmutable, []error{ErrPaymentRejected}},
		}
		for _, tt := range tests {
			txns := &mockTransactions{}
			txns.On("GetTransaction", mock.Anything, mock.Anything).Return(nil, tt.err).Once()
			_, err := newCardProvider(cfg, txns, shared).Verify(ctx, "txn_1")
			for _, want := range tt.want {
				assert.ErrorIs(t, err, want, tt.name)
			}
		}
	})

	t.Run("verify maps status", func(t *testing.T) {
		t.Parallel()
		for raw, want := range map[string]Status{
			"completed": StatusSuccess,
			"paid":      StatusSuccess,
			"canceled":  StatusFailed,
			"past_due":  StatusFailed,
			"ready":     StatusPending,
			"draft":     StatusPending,
		} {
			txns := &mockTransactions{}
			txns.On("GetTransaction", mock.Anything, &paddle.GetTransactionRequest{TransactionID: "txn_1"}).
				Return(&paddle.Transaction{ID: "txn_1", Status: paddle.TransactionStatus(raw)}, nil)
			got, err := newCardProvider(cfg, txns, shared).Verify(ctx, "txn_1")
			require.NoError(t, err)
			assert.Equal(t, want, got, raw)
		}
	})
}
