package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrymomot/entitle/pkg/jwt"
)

// Context is the request context plus access to the HTTP exchange and the
// authenticated caller.
type Context interface {
	context.Context
	Request() *http.Request
	ResponseWriter() http.ResponseWriter
	// UserID is the authenticated subject, or "" on public routes.
	UserID() string
	// Email is the email claim of the caller's token, if any.
	Email() string
}

func NewContext(w http.ResponseWriter, r *http.Request) Context {
	return &httpContext{w: w, r: r}
}

type httpContext struct {
	w http.ResponseWriter
	r *http.Request
}

func (c *httpContext) Request() *http.Request              { return c.r }
func (c *httpContext) ResponseWriter() http.ResponseWriter { return c.w }

func (c *httpContext) UserID() string {
	return jwt.UserID(c.r.Context())
}

func (c *httpContext) Email() string {
	if claims, ok := jwt.ClaimsFromContext(c.r.Context()); ok {
		return claims.Email
	}
	return ""
}

func (c *httpContext) Deadline() (time.Time, bool) { return c.r.Context().Deadline() }
func (c *httpContext) Done() <-chan struct{}       { return c.r.Context().Done() }
func (c *httpContext) Err() error                  { return c.r.Context().Err() }
func (c *httpContext) Value(key any) any           { return c.r.Context().Value(key) }
