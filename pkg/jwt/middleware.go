package jwt

import (
	"net/http"
	"strings"
)

// ErrorHandler writes the response for a rejected request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

type middlewareOptions struct {
	onError ErrorHandler
}

type MiddlewareOption func(*middlewareOptions)

// WithErrorHandler replaces the plain-text 401 response.
func WithErrorHandler(h ErrorHandler) MiddlewareOption {
	return func(o *middlewareOptions) {
		if h != nil {
			o.onError = h
		}
	}
}

// Middleware rejects requests without a valid bearer token and stores the
// verified claims in the request context.
func Middleware(svc *Service, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	o := middlewareOptions{
		onError: func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				o.onError(w, r, err)
				return
			}
			claims, err := svc.Parse(token)
			if err != nil {
				o.onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, error) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}
