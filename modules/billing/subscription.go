package billing

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/dmitrymomot/entitle/handler"
	"github.com/dmitrymomot/entitle/pkg/binder"
	"github.com/dmitrymomot/entitle/pkg/validator"
	"github.com/dmitrymomot/entitle/svc/payment"
	"github.com/dmitrymomot/entitle/svc/plan"
	"github.com/dmitrymomot/entitle/svc/subscription"
)

// Subscriptions is the part of the subscription service the HTTP layer uses.
type Subscriptions interface {
	Get(ctx context.Context, userID string) (*subscription.Subscription, error)
	Upgrade(ctx context.Context, req subscription.UpgradeRequest) (*subscription.UpgradeResult, error)
	Cancel(ctx context.Context, userID string) (*subscription.Subscription, error)
}

type SubscriptionService struct {
	subs    Subscriptions
	catalog plan.Catalog
	opts    options
}

func NewSubscriptionService(subs Subscriptions, catalog plan.Catalog, opts ...Option) *SubscriptionService {
	return &SubscriptionService{subs: subs, catalog: catalog, opts: newOptions(opts)}
}

func (s *SubscriptionService) Handle() http.Handler {
	r := chi.NewRouter()

	r.Get("/plans", handler.Wrap(s.plans,
		handler.WithErrorHandler[struct{}](s.opts.errorHandler),
	))

	r.Group(func(r chi.Router) {
		r.Use(s.opts.protect...)

		r.Get("/", handler.Wrap(s.get,
			handler.WithErrorHandler[struct{}](s.opts.errorHandler),
		))
		r.Post("/upgrade", handler.Wrap(s.upgrade,
			handler.WithBinders[UpgradeRequest](binder.JSON()),
			handler.WithErrorHandler[UpgradeRequest](s.opts.errorHandler),
		))
		r.Post("/cancel", handler.Wrap(s.cancel,
			handler.WithErrorHandler[struct{}](s.opts.errorHandler),
		))
	})

	return r
}

func (s *SubscriptionService) get(ctx handler.Context, _ struct{}) handler.Response {
	sub, err := s.subs.Get(ctx, ctx.UserID())
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(sub)
}

// UpgradeRequest is the body of POST /subscription/upgrade. Free plans need
// no payment method.
type UpgradeRequest struct {
	PlanID         plan.ID           `json:"plan"`
	BillingCycle   plan.BillingCycle `json:"billingCycle,omitempty"`
	PaymentMethod  payment.Kind      `json:"paymentMethod,omitempty"`
	PaymentDetails payment.Details   `json:"paymentDetails"`
}

func (req UpgradeRequest) validate() error {
	return validator.Apply(
		validator.Required("plan", req.PlanID),
		validator.OneOf("billingCycle", req.BillingCycle, plan.Monthly, plan.Yearly).Optional(req.BillingCycle == ""),
		validator.OneOf("paymentMethod", req.PaymentMethod, payment.KindCard, payment.KindMTN, payment.KindAirtel).
			Optional(req.PaymentMethod == ""),
	)
}

func (s *SubscriptionService) upgrade(ctx handler.Context, req UpgradeRequest) handler.Response {
	if err := req.validate(); err != nil {
		return handler.Error(err)
	}

	up := subscription.UpgradeRequest{
		UserID:       ctx.UserID(),
		PlanID:       req.PlanID,
		BillingCycle: req.BillingCycle,
	}
	if req.PaymentMethod != "" {
		details := req.PaymentDetails
		if req.PaymentMethod == payment.KindCard && details.Email == "" {
			details.Email = ctx.Email()
		}
		m, err := payment.ParseMethod(req.PaymentMethod, details)
		if err != nil {
			return handler.Error(err)
		}
		up.Method = m
	}

	res, err := s.subs.Upgrade(ctx, up)
	if err != nil {
		return handler.Error(err)
	}
	if res.Payment != nil {
		// The plan activates once the provider confirms the charge.
		return handler.JSON(res, handler.WithJSONStatus(http.StatusAccepted))
	}
	return handler.JSON(res)
}

func (s *SubscriptionService) cancel(ctx handler.Context, _ struct{}) handler.Response {
	sub, err := s.subs.Cancel(ctx, ctx.UserID())
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(sub)
}

// PlanView is a catalog entry with prices rendered for the caller's locale.
type PlanView struct {
	plan.Plan
	DisplayPrice       string `json:"displayPrice"`
	DisplayYearlyPrice string `json:"displayYearlyPrice"`
}

func (s *SubscriptionService) plans(ctx handler.Context, _ struct{}) handler.Response {
	plans, err := s.catalog.ListPlans(ctx)
	if err != nil {
		return handler.Error(err)
	}
	tag := preferredLanguage(ctx.Request())

	out := make([]PlanView, 0, len(plans))
	for _, p := range plans {
		monthly, err := plan.FormatPrice(p, plan.Monthly, tag)
		if err != nil {
			return handler.Error(err)
		}
		yearly, err := plan.FormatPrice(p, plan.Yearly, tag)
		if err != nil {
			return handler.Error(err)
		}
		out = append(out, PlanView{Plan: p, DisplayPrice: monthly, DisplayYearlyPrice: yearly})
	}
	return handler.JSON(out, handler.WithJSONMeta(map[string]any{"locale": tag.String()}))
}

// preferredLanguage picks the caller's first Accept-Language tag, defaulting
// to English.
func preferredLanguage(r *http.Request) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return language.English
	}
	return tags[0]
}
