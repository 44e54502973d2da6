package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitle/pkg/logger"
	"github.com/dmitrymomot/entitle/pkg/metrics"
)

// Status is the canonical state of a transaction.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Charge describes what to collect.
type Charge struct {
	UserID      string
	Reference   string
	PlanID      string
	Cycle       string
	Amount      int64 // minor units
	Currency    string
	Description string
}

// Handle correlates a local charge with the provider transaction.
type Handle struct {
	TransactionID    string `json:"transactionId"`
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorizationUrl,omitempty"`
}

// Provider is implemented by each payment provider adapter.
type Provider interface {
	Kind() Kind
	Initiate(ctx context.Context, m Method, c Charge) (Handle, error)
	Verify(ctx context.Context, transactionID string) (Status, error)
}

// NewReference returns a globally unique payment reference.
func NewReference() string {
	return uuid.NewString()
}

// Gateway routes calls to the provider registered for a method kind.
type Gateway struct {
	providers map[Kind]Provider
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

func WithProvider(p Provider) GatewayOption {
	return func(g *Gateway) {
		if p != nil {
			g.providers[p.Kind()] = p
		}
	}
}

func WithMetrics(m *metrics.Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

func WithLogger(log *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if log != nil {
			g.logger = log
		}
	}
}

func NewGateway(opts ...GatewayOption) *Gateway {
	g := &Gateway{providers: make(map[Kind]Provider), logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Supports reports whether a provider is registered for kind.
func (g *Gateway) Supports(kind Kind) bool {
	_, ok := g.providers[kind]
	return ok
}

// Kinds returns the registered method kinds in canonical order.
func (g *Gateway) Kinds() []Kind {
	out := make([]Kind, 0, len(g.providers))
	for _, k := range Kinds {
		if g.Supports(k) {
			out = append(out, k)
		}
	}
	return out
}

// Initiate starts a charge. An empty Reference is filled with NewReference.
func (g *Gateway) Initiate(ctx context.Context, m Method, c Charge) (Handle, error) {
	if m == nil {
		return Handle{}, ErrInvalidMethod
	}
	p, ok := g.providers[m.Kind()]
	if !ok {
		return Handle{}, fmt.Errorf("%w: %s", ErrProviderNotConfigured, m.Kind())
	}
	if c.Amount <= 0 || c.Currency == "" || c.UserID == "" {
		return Handle{}, fmt.Errorf("%w: amount, currency and user are required", ErrInvalidCharge)
	}
	if c.Reference == "" {
		c.Reference = NewReference()
	}

	start := time.Now()
	h, err := p.Initiate(ctx, m, c)
	g.observe(ctx, m.Kind(), "initiate", start, err)
	if err != nil {
		return Handle{}, err
	}
	if h.Reference == "" {
		h.Reference = c.Reference
	}

	g.logger.InfoContext(ctx, "payment initiated",
		logger.UserID(c.UserID),
		logger.Provider(string(m.Kind())),
		logger.TransactionID(h.TransactionID),
		logger.Reference(h.Reference))

	return h, nil
}

// Verify asks the provider for the current status of a transaction.
func (g *Gateway) Verify(ctx context.Context, kind Kind, transactionID string) (Status, error) {
	p, ok := g.providers[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrProviderNotConfigured, kind)
	}
	if transactionID == "" {
		return "", fmt.Errorf("%w: empty transaction id", ErrInvalidCharge)
	}

	start := time.Now()
	st, err := p.Verify(ctx, transactionID)
	g.observe(ctx, kind, "verify", start, err)
	return st, err
}

func (g *Gateway) observe(ctx context.Context, kind Kind, op string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrProviderUnavailable):
		outcome = "unavailable"
	case errors.Is(err, ErrPaymentRejected):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	g.metrics.PaymentRequest(string(kind), op, outcome, time.Since(start))

	if err != nil {
		g.logger.WarnContext(ctx, "payment provider call failed",
			logger.Provider(string(kind)),
			slog.String("operation", op),
			slog.String("outcome", outcome),
			logger.Error(err))
	}
}
