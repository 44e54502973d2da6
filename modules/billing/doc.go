// Package billing exposes subscriptions, usage and payments over HTTP.
//
// Each service implements Mountable and builds its own chi router; Router
// mounts them under /subscription, /usage and /payments:
//
//	protect := []func(http.Handler) http.Handler{
//	    jwt.Middleware(tokens, jwt.WithErrorHandler(handler.HTTPErrorWriter(errs))),
//	    ratelimiter.Middleware(limiter, billing.RateLimitKey, ratelimiter.WithErrorHandler(billing.RateLimitErrorHandler(errs))),
//	    billing.EnsureSubscription(subs, errs),
//	}
//	r.Mount("/", billing.Router(billing.RouterOptions{
//	    Subscription: billing.NewSubscriptionService(subs, catalog, billing.WithProtection(protect...)),
//	    Usage:        billing.NewUsageService(ledger, checker, billing.WithProtection(protect...)),
//	    Payments:     billing.NewPaymentService(subs, webhooks, parsers, billing.WithProtection(protect...)),
//	}))
//
// Routes that act on behalf of a user run behind the protection chain. Plan
// listings and payment provider webhooks are public.
package billing
