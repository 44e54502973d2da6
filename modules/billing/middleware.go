package billing

import (
	"context"
	"net/http"

	"github.com/dmitrymomot/entitle/handler"
	"github.com/dmitrymomot/entitle/pkg/clientip"
	"github.com/dmitrymomot/entitle/pkg/jwt"
	"github.com/dmitrymomot/entitle/pkg/ratelimiter"
	"github.com/dmitrymomot/entitle/svc/subscription"
)

// Ensurer creates the trial subscription of a first-time user.
type Ensurer interface {
	Ensure(ctx context.Context, userID, email string) (*subscription.Subscription, error)
}

// EnsureSubscription makes sure the authenticated caller has a subscription
// record before the request reaches a handler. It must run after the JWT
// middleware.
func EnsureSubscription(subs Ensurer, errorHandler handler.ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = handler.DefaultErrorHandler
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := handler.NewContext(w, r)
			if ctx.UserID() == "" {
				errorHandler(ctx, jwt.ErrMissingSubject)
				return
			}
			if _, err := subs.Ensure(r.Context(), ctx.UserID(), ctx.Email()); err != nil {
				errorHandler(ctx, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitKey limits authenticated callers per user and anything else per
// client IP.
var RateLimitKey = ratelimiter.FirstOf(
	func(r *http.Request) string {
		if id := jwt.UserID(r.Context()); id != "" {
			return "user:" + id
		}
		return ""
	},
	clientip.KeyFunc,
)

// RateLimitErrorHandler reports rate limiter outcomes through errorHandler.
func RateLimitErrorHandler(errorHandler handler.ErrorHandler) ratelimiter.ErrorHandler {
	return func(w http.ResponseWriter, r *http.Request, res *ratelimiter.Result, err error) {
		ctx := handler.NewContext(w, r)
		if err != nil {
			errorHandler(ctx, handler.ErrUnavailable.Wrap(err))
			return
		}
		errorHandler(ctx, errRateLimited.WithDetails(map[string]any{
			"limit":   res.Limit,
			"resetAt": res.ResetAt,
		}))
	}
}
