// Package requestid tags every request with an id that is echoed in the
// X-Request-ID response header and attached to log records.
package requestid

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

const Header = "X-Request-ID"

var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

type contextKey struct{}

func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Middleware keeps a well-formed incoming id and generates one otherwise.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if !validID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), id)))
	})
}

// LoggerExtractor adds request_id to records logged with a request context.
func LoggerExtractor(ctx context.Context) (slog.Attr, bool) {
	if id := FromContext(ctx); id != "" {
		return slog.String("request_id", id), true
	}
	return slog.Attr{}, false
}
