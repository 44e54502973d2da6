package ratelimiter

import (
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxKeyLength = 64

// KeyFunc extracts the client key from a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// Composite joins the non-empty keys of several key funcs. Keys longer than
// 64 bytes are hashed with FNV-1a.
func Composite(keyFuncs ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(keyFuncs))
		for _, fn := range keyFuncs {
			if key := fn(r); key != "" {
				parts = append(parts, key)
			}
		}
		if len(parts) == 0 {
			return ""
		}
		combined := strings.Join(parts, ":")
		if len(combined) <= maxKeyLength {
			return combined
		}
		h := fnv.New64a()
		_, _ = h.Write([]byte(combined))
		return strconv.FormatUint(h.Sum64(), 36)
	}
}

// FirstOf returns the first non-empty key, e.g. the user id falling back to the client IP.
func FirstOf(keyFuncs ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		for _, fn := range keyFuncs {
			if key := fn(r); key != "" {
				return key
			}
		}
		return ""
	}
}

// ErrorHandler writes the response for a denied or failed check. err is nil
// when the window is exhausted.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, res *Result, err error)

type middlewareOptions struct {
	onError  ErrorHandler
	failOpen bool
	now      func() time.Time
}

type MiddlewareOption func(*middlewareOptions)

func WithErrorHandler(h ErrorHandler) MiddlewareOption {
	return func(o *middlewareOptions) {
		if h != nil {
			o.onError = h
		}
	}
}

// WithFailOpen lets requests through when the store is unavailable.
func WithFailOpen() MiddlewareOption {
	return func(o *middlewareOptions) { o.failOpen = true }
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, res *Result, err error) {
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
}

// Middleware applies l per key and sets the X-RateLimit-* headers.
func Middleware(l *Limiter, keyFunc KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	o := middlewareOptions{onError: defaultErrorHandler, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := l.Allow(r.Context(), key)
			if err != nil {
				if o.failOpen {
					next.ServeHTTP(w, r)
					return
				}
				o.onError(w, r, nil, err)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				retry := int((res.RetryAfter(o.now()) + time.Second - 1) / time.Second)
				h.Set("Retry-After", strconv.Itoa(max(1, retry)))
				o.onError(w, r, res, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
