package confirmation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrymomot/entitle/pkg/logger"
	"github.com/dmitrymomot/entitle/pkg/metrics"
	"github.com/dmitrymomot/entitle/pkg/queue"
	"github.com/dmitrymomot/entitle/svc/payment"
	"github.com/dmitrymomot/entitle/svc/subscription"
)

// Subscriptions is the part of the subscription service confirmations use.
type Subscriptions interface {
	FindByReference(ctx context.Context, reference string) (*subscription.Subscription, error)
	ConfirmPayment(ctx context.Context, userID, transactionID string, kind payment.Kind) (*subscription.Result, error)
}

// Enqueuer queues confirmation tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) error
}

// Delivery is the outcome of Accept.
type Delivery struct {
	Notification Notification
	Duplicate    bool
	Skipped      bool
}

type Handler struct {
	subs     Subscriptions
	enqueuer Enqueuer
	dedupe   Deduper
	maxBody  int64
	retries  int8
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Handler)

// WithEnqueuer queues notifications. Without it Accept processes inline.
func WithEnqueuer(e Enqueuer) Option {
	return func(h *Handler) { h.enqueuer = e }
}

func WithDeduper(d Deduper) Option {
	return func(h *Handler) {
		if d != nil {
			h.dedupe = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithConfig applies the body limit and task retries.
func WithConfig(cfg Config) Option {
	return func(h *Handler) {
		if cfg.MaxBodyBytes > 0 {
			h.maxBody = cfg.MaxBodyBytes
		}
		if cfg.TaskRetries > 0 {
			h.retries = cfg.TaskRetries
		}
	}
}

func NewHandler(subs Subscriptions, opts ...Option) *Handler {
	h := &Handler{
		subs:    subs,
		dedupe:  NewMemoryDeduper(10000, 24*time.Hour),
		maxBody: 64 << 10,
		retries: 5,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(logger.Component("confirmation"))
	return h
}

// Accept authenticates and records one webhook delivery. A nil error means
// the delivery was handled and the provider should get a 2xx.
func (h *Handler) Accept(ctx context.Context, p Parser, r *http.Request) (Delivery, error) {
	source := p.Source()

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody+1))
	if err != nil {
		h.metrics.Webhook(source, "malformed")
		return Delivery{}, fmt.Errorf("%w: read body: %v", ErrMalformedPayload, err)
	}
	if int64(len(body)) > h.maxBody {
		h.metrics.Webhook(source, "malformed")
		return Delivery{}, ErrPayloadTooLarge
	}

	n, err := p.Parse(r, body)
	if err != nil {
		outcome := "malformed"
		if errors.Is(err, ErrInvalidSignature) {
			outcome = "invalid_signature"
			h.logger.WarnContext(ctx, "webhook signature rejected", slog.String("source", source), logger.Error(err))
		}
		h.metrics.Webhook(source, outcome)
		return Delivery{}, err
	}
	log := h.logger.With(slog.String("source", source), logger.Event(n.Event), logger.Reference(n.Reference))

	if n.Pending() {
		h.metrics.Webhook(source, "skipped")
		log.DebugContext(ctx, "pending notification ignored")
		return Delivery{Notification: n, Skipped: true}, nil
	}

	key := n.DedupeKey()
	first, err := h.dedupe.Claim(ctx, key)
	if err != nil {
		// Without the dedupe store a duplicate is still harmless: confirmation is idempotent.
		log.WarnContext(ctx, "webhook dedupe unavailable", logger.Error(err))
		first = true
	}
	if !first {
		h.metrics.Webhook(source, "duplicate")
		log.InfoContext(ctx, "duplicate webhook delivery")
		return Delivery{Notification: n, Duplicate: true}, nil
	}

	task := ConfirmTask{Notification: n, ReceivedAt: h.now().UTC()}
	if h.enqueuer == nil {
		err = h.Process(ctx, task)
	} else {
		err = h.enqueuer.Enqueue(ctx, task, queue.WithMaxRetries(h.retries), queue.WithPriority(queue.PriorityHigh))
	}
	if err != nil {
		if ferr := h.dedupe.Forget(ctx, key); ferr != nil {
			log.WarnContext(ctx, "failed to release dedupe key", logger.Error(ferr))
		}
		h.metrics.Webhook(source, "error")
		return Delivery{}, err
	}

	h.metrics.Webhook(source, "accepted")
	log.InfoContext(ctx, "webhook accepted")
	return Delivery{Notification: n}, nil
}

// Process applies a queued notification. Errors worth retrying are returned
// so the queue retries them; permanent failures are logged and dropped.
func (h *Handler) Process(ctx context.Context, task ConfirmTask) error {
	n := task.Notification
	log := h.logger.With(slog.String("source", n.Source), logger.Reference(n.Reference))

	err := h.confirm(ctx, log, n)
	switch {
	case err == nil:
		return nil
	case retryable(err):
		log.WarnContext(ctx, "confirmation will be retried", logger.Error(err))
		return err
	default:
		log.ErrorContext(ctx, "confirmation dropped", logger.Error(err))
		return nil
	}
}

func (h *Handler) confirm(ctx context.Context, log *slog.Logger, n Notification) error {
	if n.Reference == "" {
		return ErrMissingReference
	}
	sub, err := h.subs.FindByReference(ctx, n.Reference)
	if err != nil {
		return err
	}
	if !identityMatches(sub, n.CustomerIdentity) {
		return fmt.Errorf("%w: %q", ErrIdentityMismatch, n.CustomerIdentity)
	}

	txID := n.TransactionID
	if txID == "" {
		var ok bool
		if txID, ok = sub.TransactionFor(n.Reference); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTransaction, n.Reference)
		}
	}

	res, err := h.subs.ConfirmPayment(ctx, sub.UserID, txID, n.Method)
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "payment confirmation applied",
		logger.UserID(sub.UserID),
		logger.TransactionID(txID),
		logger.Status(string(res.Status)),
		slog.Bool("duplicate", res.Duplicate))
	return nil
}

// retryable covers provider outages, storage failures and references not yet
// persisted when the push raced the upgrade request.
func retryable(err error) bool {
	return payment.IsTransient(err) ||
		errors.Is(err, subscription.ErrStoreOperation) ||
		errors.Is(err, subscription.ErrNotFound) ||
		errors.Is(err, context.DeadlineExceeded)
}

// identityMatches accepts the user id, the account email or the phone number
// used for the charge. An empty identity defers to the reference alone.
func identityMatches(sub *subscription.Subscription, identity string) bool {
	identity = strings.TrimSpace(identity)
	if identity == "" || identity == sub.UserID {
		return true
	}
	if sub.Email != "" && strings.EqualFold(identity, sub.Email) {
		return true
	}
	if sub.PaymentDetails == nil || sub.PaymentDetails.PhoneNumber == "" {
		return false
	}
	want, err1 := payment.NormalizePhone(sub.PaymentDetails.PhoneNumber)
	got, err2 := payment.NormalizePhone(identity)
	return err1 == nil && err2 == nil && want == got
}
