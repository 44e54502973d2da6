package billing

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/entitle/handler"
	"github.com/dmitrymomot/entitle/pkg/binder"
	"github.com/dmitrymomot/entitle/svc/confirmation"
	"github.com/dmitrymomot/entitle/svc/subscription"
)

// Verifier polls the provider for a transaction of the caller.
type Verifier interface {
	VerifyTransaction(ctx context.Context, userID, transactionID string) (*subscription.Result, error)
}

// Webhooks accepts provider push notifications.
type Webhooks interface {
	Accept(ctx context.Context, p confirmation.Parser, r *http.Request) (confirmation.Delivery, error)
}

// Parsers are the webhook sources to expose. Signed serves /webhook and
// Paddle /webhook/paddle; a nil parser leaves its route unmounted.
type Parsers struct {
	Signed confirmation.Parser
	Paddle confirmation.Parser
}

type PaymentService struct {
	verifier Verifier
	webhooks Webhooks
	parsers  Parsers
	opts     options
}

func NewPaymentService(verifier Verifier, webhooks Webhooks, parsers Parsers, opts ...Option) *PaymentService {
	return &PaymentService{verifier: verifier, webhooks: webhooks, parsers: parsers, opts: newOptions(opts)}
}

func (s *PaymentService) Handle() http.Handler {
	r := chi.NewRouter()

	if s.parsers.Signed != nil {
		r.Post("/webhook", handler.Wrap(s.webhook(s.parsers.Signed),
			handler.WithErrorHandler[struct{}](s.opts.errorHandler),
		))
	}
	if s.parsers.Paddle != nil {
		r.Post("/webhook/paddle", handler.Wrap(s.webhook(s.parsers.Paddle),
			handler.WithErrorHandler[struct{}](s.opts.errorHandler),
		))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.opts.protect...)

		r.Get("/verify/{transactionId}", handler.Wrap(s.verify,
			handler.WithBinders[VerifyRequest](binder.Path()),
			handler.WithErrorHandler[VerifyRequest](s.opts.errorHandler),
		))
	})

	return r
}

type VerifyRequest struct {
	TransactionID string `path:"transactionId" json:"-"`
}

func (s *PaymentService) verify(ctx handler.Context, req VerifyRequest) handler.Response {
	res, err := s.verifier.VerifyTransaction(ctx, ctx.UserID(), req.TransactionID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(res)
}

// WebhookAck is returned to the provider for every handled delivery,
// duplicates included, so it stops retrying.
type WebhookAck struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	Reference string `json:"reference,omitempty"`
}

func (s *PaymentService) webhook(p confirmation.Parser) handler.HandlerFunc[struct{}] {
	return func(ctx handler.Context, _ struct{}) handler.Response {
		d, err := s.webhooks.Accept(ctx, p, ctx.Request())
		if err != nil {
			return handler.Error(err)
		}
		return handler.JSON(WebhookAck{
			Received:  true,
			Duplicate: d.Duplicate,
			Skipped:   d.Skipped,
			Reference: d.Notification.Reference,
		})
	}
}
