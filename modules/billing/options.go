package billing

import (
	"net/http"

	"github.com/dmitrymomot/entitle/handler"
)

type options struct {
	errorHandler handler.ErrorHandler
	protect      []func(http.Handler) http.Handler
}

type Option func(*options)

// WithErrorHandler sets the handler every route reports errors to.
func WithErrorHandler(h handler.ErrorHandler) Option {
	return func(o *options) {
		if h != nil {
			o.errorHandler = h
		}
	}
}

// WithProtection sets the middleware chain applied to authenticated routes,
// outermost first.
func WithProtection(mw ...func(http.Handler) http.Handler) Option {
	return func(o *options) {
		o.protect = append(o.protect, mw...)
	}
}

func newOptions(opts []Option) options {
	o := options{errorHandler: handler.NewErrorHandler(nil, ErrorMapper)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
