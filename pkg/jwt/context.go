package jwt

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/entitle/pkg/logger"
)

type claimsKey struct{}

// WithClaims stores verified claims in ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the claims stored by Middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}

// UserID returns the authenticated subject, or "" outside an authenticated request.
func UserID(ctx context.Context) string {
	if c, ok := ClaimsFromContext(ctx); ok {
		return c.Subject
	}
	return ""
}

// LoggerExtractor adds user_id to records logged within an authenticated request.
func LoggerExtractor(ctx context.Context) (slog.Attr, bool) {
	if id := UserID(ctx); id != "" {
		return logger.UserID(id), true
	}
	return slog.Attr{}, false
}
