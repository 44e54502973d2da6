// Package clientip resolves the address of the client behind a request.
//
// Forwarding headers are only honoured when the server runs behind a trusted
// proxy; otherwise any client could pick its own rate limit key.
package clientip

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// proxyHeaders are checked in order when the proxy is trusted.
var proxyHeaders = []string{"CF-Connecting-IP", "X-Real-IP"}

// Resolve returns the normalized client IP, or "" if none is valid.
func Resolve(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, h := range proxyHeaders {
			if ip := parseIP(r.Header.Get(h)); ip != "" {
				return ip
			}
		}
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := parseIP(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return parseIP(r.RemoteAddr)
	}
	return parseIP(host)
}

func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}

type contextKey struct{}

// Middleware stores the resolved IP in the request context.
func Middleware(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), contextKey{}, Resolve(r, trustProxy))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext returns the IP stored by Middleware.
func FromContext(ctx context.Context) string {
	ip, _ := ctx.Value(contextKey{}).(string)
	return ip
}

// KeyFunc returns the client IP for use as a rate limit key.
func KeyFunc(r *http.Request) string {
	if ip := FromContext(r.Context()); ip != "" {
		return "ip:" + ip
	}
	return ""
}
