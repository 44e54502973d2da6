package payment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitle/pkg/logger"
	"github.com/dmitrymomot/entitle/pkg/metrics"
	"github.com/dmitrymomot/entitle/svc/payment"
)

type mockProvider struct {
	mock.Mock
	kind payment.Kind
}

func (m *mockProvider) Kind() payment.Kind { return m.kind }

func (m *mockProvider) Initiate(ctx context.Context, method payment.Method, c payment.Charge) (payment.Handle, error) {
	args := m.Called(ctx, method, c)
	return args.Get(0).(payment.Handle), args.Error(1)
}

func (m *mockProvider) Verify(ctx context.Context, id string) (payment.Status, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(payment.Status), args.Error(1)
}

func TestGateway(t *testing.T) {
	t.Parallel()

	mtn := &mockProvider{kind: payment.KindMTN}
	gw := payment.NewGateway(
		payment.WithProvider(mtn),
		payment.WithMetrics(metrics.New()),
		payment.WithLogger(logger.Discard()),
	)
	ctx := context.Background()
	method := payment.MTNMethod{PhoneNumber: "256772123456"}

	t.Run("routes by kind and fills reference", func(t *testing.T) {
		mtn.On("Initiate", mock.Anything, method, mock.MatchedBy(func(c payment.Charge) bool {
			return c.Reference != "" && c.Amount == 2900
		})).Return(payment.Handle{TransactionID: "tx-1"}, nil).Once()

		h, err := gw.Initiate(ctx, method, payment.Charge{UserID: "u1", Amount: 2900, Currency: "USD"})
		require.NoError(t, err)
		assert.Equal(t, "tx-1", h.TransactionID)
		assert.NotEmpty(t, h.Reference)
	})

	t.Run("unconfigured provider", func(t *testing.T) {
		_, err := gw.Initiate(ctx, payment.CardMethod{Email: "a@b.co"}, payment.Charge{UserID: "u1", Amount: 1, Currency: "USD"})
		assert.ErrorIs(t, err, payment.ErrProviderNotConfigured)

		_, err = gw.Verify(ctx, payment.KindAirtel, "tx")
		assert.ErrorIs(t, err, payment.ErrProviderNotConfigured)
	})

	t.Run("invalid charge", func(t *testing.T) {
		_, err := gw.Initiate(ctx, method, payment.Charge{UserID: "u1", Currency: "USD"})
		assert.ErrorIs(t, err, payment.ErrInvalidCharge)
	})

	t.Run("verify passes through errors", func(t *testing.T) {
		mtn.On("Verify", mock.Anything, "tx-2").Return(payment.Status(""), payment.ErrProviderUnavailable).Once()
		_, err := gw.Verify(ctx, payment.KindMTN, "tx-2")
		assert.True(t, payment.IsTransient(err))
	})

	t.Run("kinds", func(t *testing.T) {
		assert.Equal(t, []payment.Kind{payment.KindMTN}, gw.Kinds())
		assert.True(t, gw.Supports(payment.KindMTN))
	})

	mtn.AssertExpectations(t)
}
