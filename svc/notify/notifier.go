package notify

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/dmitrymomot/entitle/pkg/logger"
	"github.com/dmitrymomot/entitle/svc/payment"
	"github.com/dmitrymomot/entitle/svc/plan"
	"github.com/dmitrymomot/entitle/svc/subscription"
)

const dateLayout = "January 2, 2006"

// Notifier emails subscribers about billing events. Subscriptions without an
// email address are skipped.
type Notifier struct {
	sender  Sender
	catalog plan.Catalog
	support string
	locale  language.Tag
	logger  *slog.Logger
}

type Option func(*Notifier)

func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithConfig applies the support address and the locale used for amounts.
func WithConfig(cfg Config) Option {
	return func(n *Notifier) {
		if cfg.SupportEmail != "" {
			n.support = cfg.SupportEmail
		}
		if tag, err := language.Parse(cfg.Locale); err == nil {
			n.locale = tag
		}
	}
}

func New(sender Sender, catalog plan.Catalog, opts ...Option) *Notifier {
	n := &Notifier{
		sender:  sender,
		catalog: catalog,
		support: "support@localhost",
		locale:  language.English,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With(logger.Component("notify"))
	return n
}

// PaymentConfirmed sends a receipt for a paid billing entry.
func (n *Notifier) PaymentConfirmed(ctx context.Context, s *subscription.Subscription, entry subscription.BillingEntry) error {
	if s.Email == "" {
		return nil
	}
	data := receiptData{
		PlanName:      n.planName(ctx, entry.Plan),
		Amount:        n.amount(entry.Amount, entry.Currency),
		TransactionID: entry.TransactionID,
		Method:        methodName(entry.PaymentMethod),
		PaidOn:        entry.Date.Format(dateLayout),
		SupportEmail:  n.support,
	}
	if s.EndDate != nil {
		data.ValidUntil = s.EndDate.Format(dateLayout)
	}
	return n.send(ctx, s, "receipt.html", "Payment received: "+data.PlanName, "receipt", data)
}

// RenewalInitiated tells the subscriber a renewal charge is waiting for them.
func (n *Notifier) RenewalInitiated(ctx context.Context, s *subscription.Subscription, h payment.Handle) error {
	if s.Email == "" {
		return nil
	}
	data := renewalData{
		PlanName:         n.planName(ctx, s.Plan),
		TransactionID:    h.TransactionID,
		AuthorizationURL: h.AuthorizationURL,
		SupportEmail:     n.support,
	}
	if d := s.PaymentDetails; d != nil {
		data.Amount = n.amount(d.Amount, d.Currency)
	}
	return n.send(ctx, s, "renewal.html", "Your "+data.PlanName+" plan is renewing", "renewal", data)
}

// SubscriptionExpired sends the expiry notice. The plan named is the last one
// billed, since the subscription itself is already demoted.
func (n *Notifier) SubscriptionExpired(ctx context.Context, s *subscription.Subscription) error {
	if s.Email == "" {
		return nil
	}
	id := s.Plan
	if len(s.BillingHistory) > 0 {
		id = s.BillingHistory[len(s.BillingHistory)-1].Plan
	}
	data := expiryData{
		PlanName:     n.planName(ctx, id),
		ExpiredOn:    s.UpdatedAt.Format(dateLayout),
		SupportEmail: n.support,
	}
	return n.send(ctx, s, "expired.html", "Your "+data.PlanName+" subscription has ended", "expiry", data)
}

func (n *Notifier) send(ctx context.Context, s *subscription.Subscription, tpl, subject, tag string, data any) error {
	body, err := render(tpl, data)
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, Message{To: s.Email, Subject: subject, HTMLBody: body, Tag: tag}); err != nil {
		return err
	}
	n.logger.DebugContext(ctx, "email sent", logger.UserID(s.UserID), slog.String("tag", tag))
	return nil
}

func (n *Notifier) planName(ctx context.Context, id plan.ID) string {
	if n.catalog != nil {
		if p, err := n.catalog.GetPlan(ctx, id); err == nil && p.Name != "" {
			return p.Name
		}
	}
	return string(id)
}

func (n *Notifier) amount(minor int64, code string) string {
	s, err := plan.FormatAmount(minor, code, n.locale)
	if err != nil {
		return strings.TrimSpace(code + " " + strconv.FormatInt(minor, 10))
	}
	return s
}

func methodName(k payment.Kind) string {
	switch k {
	case payment.KindCard:
		return "Card"
	case payment.KindMTN:
		return "MTN Mobile Money"
	case payment.KindAirtel:
		return "Airtel Money"
	}
	return string(k)
}
