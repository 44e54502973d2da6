package handler

import (
	"net/http"
)

// HandlerFunc handles a decoded request.
type HandlerFunc[R any] func(ctx Context, req R) Response

// Response renders itself to the response writer.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// Bind decodes part of a request into v.
type Bind func(r *http.Request, v any) error

// Decorator wraps a HandlerFunc. The first decorator given is the outermost.
type Decorator[R any] func(HandlerFunc[R]) HandlerFunc[R]

type wrapConfig[R any] struct {
	binders      []Bind
	errorHandler ErrorHandler
	decorators   []Decorator[R]
}

type WrapOption[R any] func(*wrapConfig[R])

// WithBinders appends binders applied in order.
func WithBinders[R any](binders ...Bind) WrapOption[R] {
	return func(c *wrapConfig[R]) {
		c.binders = append(c.binders, binders...)
	}
}

func WithErrorHandler[R any](h ErrorHandler) WrapOption[R] {
	return func(c *wrapConfig[R]) {
		if h != nil {
			c.errorHandler = h
		}
	}
}

func WithDecorators[R any](decorators ...Decorator[R]) WrapOption[R] {
	return func(c *wrapConfig[R]) {
		c.decorators = append(c.decorators, decorators...)
	}
}

// Wrap adapts h to net/http.
func Wrap[R any](h HandlerFunc[R], opts ...WrapOption[R]) http.HandlerFunc {
	cfg := &wrapConfig[R]{errorHandler: DefaultErrorHandler}
	for _, opt := range opts {
		opt(cfg)
	}

	final := h
	for i := len(cfg.decorators) - 1; i >= 0; i-- {
		final = cfg.decorators[i](final)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := NewContext(w, r)

		var req R
		for _, bind := range cfg.binders {
			if err := bind(r, &req); err != nil {
				cfg.errorHandler(ctx, BadRequest(err))
				return
			}
		}

		resp := final(ctx, req)
		if resp == nil {
			cfg.errorHandler(ctx, ErrNilResponse)
			return
		}
		if e, ok := resp.(errorResponse); ok {
			cfg.errorHandler(ctx, e.err)
			return
		}
		if err := resp.Render(w, r); err != nil {
			cfg.errorHandler(ctx, err)
		}
	}
}
