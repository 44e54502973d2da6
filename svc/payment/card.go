package payment

import (
	"context"
	"errors"
	"fmt"
	"slices"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/PaddleHQ/paddle-go-sdk/v4/pkg/paddleerr"

	"github.com/dmitrymomot/entitle/pkg/webhook"
)

// paddleTransactions is the subset of the Paddle SDK used by CardProvider.
type paddleTransactions interface {
	CreateTransaction(ctx context.Context, req *paddle.CreateTransactionRequest) (*paddle.Transaction, error)
	GetTransaction(ctx context.Context, req *paddle.GetTransactionRequest) (*paddle.Transaction, error)
}

// CardProvider collects card and bank payments through a Paddle hosted checkout.
type CardProvider struct {
	cfg     CardConfig
	txns    paddleTransactions
	breaker *webhook.CircuitBreaker
}

// NewCardProvider creates the card adapter backed by the Paddle API.
func NewCardProvider(cfg CardConfig, shared Config) (*CardProvider, error) {
	var (
		client *paddle.SDK
		err    error
	)
	if cfg.Sandbox {
		client, err = paddle.NewSandbox(cfg.APIKey)
	} else {
		client, err = paddle.New(cfg.APIKey)
	}
	if err != nil {
		return nil, fmt.Errorf("payment: create paddle client: %w", err)
	}
	return newCardProvider(cfg, client.TransactionsClient, shared), nil
}

func newCardProvider(cfg CardConfig, txns paddleTransactions, shared Config) *CardProvider {
	return &CardProvider{
		cfg:     cfg,
		txns:    txns,
		breaker: webhook.NewCircuitBreaker(shared.BreakerFailures, shared.BreakerSuccesses, shared.BreakerRecovery),
	}
}

func (p *CardProvider) Kind() Kind { return KindCard }

// Initiate creates a Paddle transaction for the plan price and returns its
// hosted checkout URL as the authorization URL.
func (p *CardProvider) Initiate(ctx context.Context, m Method, c Charge) (Handle, error) {
	method, ok := m.(CardMethod)
	if !ok {
		return Handle{}, fmt.Errorf("%w: expected %s, got %s", ErrInvalidMethod, KindCard, m.Kind())
	}
	priceID, ok := p.cfg.PriceIDs[c.PlanID+":"+c.Cycle]
	if !ok {
		return Handle{}, fmt.Errorf("%w: no paddle price for %s:%s", ErrProviderNotConfigured, c.PlanID, c.Cycle)
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  priceID,
		Quantity: 1,
	})
	req := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"user_id":   c.UserID,
			"reference": c.Reference,
			"email":     method.Email,
			"plan_id":   c.PlanID,
		},
	}
	if p.cfg.CheckoutURL != "" {
		req.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(p.cfg.CheckoutURL)}
	}

	txn, err := guarded(p.breaker, func() (*paddle.Transaction, error) {
		return p.txns.CreateTransaction(ctx, req)
	})
	if err != nil {
		return Handle{}, err
	}
	if txn.Checkout == nil || txn.Checkout.URL == nil || *txn.Checkout.URL == "" {
		return Handle{}, fmt.Errorf("%w: paddle returned no checkout url", ErrProviderUnavailable)
	}

	return Handle{
		TransactionID:    txn.ID,
		Reference:        c.Reference,
		AuthorizationURL: *txn.Checkout.URL,
	}, nil
}

// Verify maps the Paddle transaction status to a canonical Status.
func (p *CardProvider) Verify(ctx context.Context, transactionID string) (Status, error) {
	txn, err := guarded(p.breaker, func() (*paddle.Transaction, error) {
		return p.txns.GetTransaction(ctx, &paddle.GetTransactionRequest{TransactionID: transactionID})
	})
	if err != nil {
		return "", err
	}
	return paddleCanonicalStatus(string(txn.Status)), nil
}

func paddleCanonicalStatus(s string) Status {
	switch s {
	case "completed", "paid":
		return StatusSuccess
	case "canceled", "past_due":
		return StatusFailed
	default:
		return StatusPending
	}
}

// guarded runs an SDK call through the breaker. Request errors Paddle
// returns for a reachable, authenticated account are final: they reject the
// charge and count as a healthy response. Everything else counts as the
// provider being unavailable.
func guarded(cb *webhook.CircuitBreaker, call func() (*paddle.Transaction, error)) (*paddle.Transaction, error) {
	if !cb.Allow() {
		return nil, errors.Join(ErrProviderUnavailable, webhook.ErrCircuitOpen)
	}
	txn, err := call()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		err = classifyPaddle(err)
		if errors.Is(err, ErrProviderUnavailable) {
			cb.RecordFailure()
		} else {
			cb.RecordSuccess()
		}
		return nil, err
	}
	cb.RecordSuccess()
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	return txn, nil
}

var (
	paddleAuthErrors = []error{
		paddle.ErrAuthenticationMissing,
		paddle.ErrAuthenticationMalformed,
		paddle.ErrInvalidToken,
		paddle.ErrForbidden,
		paddle.ErrPaddleBillingNotEnabled,
	}
	paddleRetryableErrors = []error{
		paddle.ErrConcurrentModification,
		paddle.ErrConflict,
	}
)

func classifyPaddle(err error) error {
	var pe *paddleerr.Error
	if !errors.As(err, &pe) || pe.Type != paddleerr.ErrorTypeRequestError {
		return fmt.Errorf("%w: paddle: %w", ErrProviderUnavailable, err)
	}
	switch {
	case errors.Is(err, paddle.ErrNotFound):
		return fmt.Errorf("%w: paddle: %w", ErrTransactionNotFound, err)
	case isAny(err, paddleAuthErrors):
		return fmt.Errorf("%w: paddle: %w", errors.Join(ErrProviderUnavailable, ErrAuthentication), err)
	case isAny(err, paddleRetryableErrors):
		return fmt.Errorf("%w: paddle: %w", ErrProviderUnavailable, err)
	}
	return fmt.Errorf("%w: paddle: %w", ErrPaymentRejected, err)
}

func isAny(err error, targets []error) bool {
	return slices.ContainsFunc(targets, func(target error) bool { return errors.Is(err, target) })
}
