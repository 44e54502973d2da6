package billing

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/entitle/handler"
	"github.com/dmitrymomot/entitle/pkg/binder"
	"github.com/dmitrymomot/entitle/pkg/validator"
	"github.com/dmitrymomot/entitle/svc/entitlement"
	"github.com/dmitrymomot/entitle/svc/plan"
	"github.com/dmitrymomot/entitle/svc/usage"
)

// Summaries reads aggregated usage for the current period.
type Summaries interface {
	Summary(ctx context.Context, userID string) (usage.Summary, error)
}

// Entitlements answers limit checks and admits usage.
type Entitlements interface {
	CheckUsageLimit(ctx context.Context, userID string, metric plan.Metric) (entitlement.Result, error)
	Limits(ctx context.Context, userID string) ([]entitlement.Result, error)
	Reserve(ctx context.Context, userID string, metric plan.Metric, amount int64) (*entitlement.Reservation, error)
}

type UsageService struct {
	summaries    Summaries
	entitlements Entitlements
	opts         options
}

func NewUsageService(summaries Summaries, entitlements Entitlements, opts ...Option) *UsageService {
	return &UsageService{summaries: summaries, entitlements: entitlements, opts: newOptions(opts)}
}

func (s *UsageService) Handle() http.Handler {
	r := chi.NewRouter()
	r.Use(s.opts.protect...)

	r.Get("/", handler.Wrap(s.summary,
		handler.WithErrorHandler[struct{}](s.opts.errorHandler),
	))
	r.Get("/limits", handler.Wrap(s.limits,
		handler.WithErrorHandler[struct{}](s.opts.errorHandler),
	))
	r.Get("/limits/{metric}", handler.Wrap(s.limit,
		handler.WithBinders[MetricRequest](binder.Path()),
		handler.WithErrorHandler[MetricRequest](s.opts.errorHandler),
	))
	r.Post("/{metric}", handler.Wrap(s.record,
		handler.WithBinders[RecordRequest](binder.Path(), binder.JSON()),
		handler.WithErrorHandler[RecordRequest](s.opts.errorHandler),
	))

	return r
}

// UsageView is the current period's consumption next to the plan limits.
type UsageView struct {
	usage.Summary
	Limits []entitlement.Result `json:"limits"`
}

func (s *UsageService) summary(ctx handler.Context, _ struct{}) handler.Response {
	sum, err := s.summaries.Summary(ctx, ctx.UserID())
	if err != nil {
		return handler.Error(err)
	}
	limits, err := s.entitlements.Limits(ctx, ctx.UserID())
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(UsageView{Summary: sum, Limits: limits})
}

func (s *UsageService) limits(ctx handler.Context, _ struct{}) handler.Response {
	limits, err := s.entitlements.Limits(ctx, ctx.UserID())
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(limits)
}

type MetricRequest struct {
	Metric plan.Metric `path:"metric" json:"-"`
}

func (s *UsageService) limit(ctx handler.Context, req MetricRequest) handler.Response {
	res, err := s.entitlements.CheckUsageLimit(ctx, ctx.UserID(), req.Metric)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(res)
}

const maxAttributes = 32

// RecordRequest reports an action that already succeeded. Amount defaults
// to one. A report that would take usage past the limit is refused and not
// recorded.
type RecordRequest struct {
	Metric     plan.Metric       `path:"metric" json:"-"`
	Amount     int64             `json:"amount,omitempty"`
	Tokens     int64             `json:"tokens,omitempty"`
	Storage    int64             `json:"storage,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (req RecordRequest) validate() error {
	return validator.Apply(
		validator.NonNegative("amount", req.Amount),
		validator.NonNegative("tokens", req.Tokens),
		validator.NonNegative("storage", req.Storage),
		validator.MaxEntries("attributes", req.Attributes, maxAttributes),
	)
}

func (s *UsageService) record(ctx handler.Context, req RecordRequest) handler.Response {
	if err := req.validate(); err != nil {
		return handler.Error(err)
	}
	amount := req.Amount
	if amount == 0 {
		amount = 1
	}

	rsv, err := s.entitlements.Reserve(ctx, ctx.UserID(), req.Metric, amount)
	if err != nil {
		return handler.Error(err)
	}
	ev, err := rsv.Commit(ctx, usage.Metadata{
		Tokens:     req.Tokens,
		Storage:    req.Storage,
		Attributes: req.Attributes,
	})
	if err != nil {
		return handler.Error(err)
	}

	res, err := s.entitlements.CheckUsageLimit(ctx, ctx.UserID(), req.Metric)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(ev, handler.WithJSONStatus(http.StatusCreated), handler.WithJSONMeta(map[string]any{
		"remaining": res.Remaining,
		"limit":     res.Limit,
	}))
}
