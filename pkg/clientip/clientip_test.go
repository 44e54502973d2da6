package clientip_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/entitle/pkg/clientip"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		trust   bool
		want    string
	}{
		{name: "remote addr", remote: "10.0.0.1:5555", want: "10.0.0.1"},
		{name: "ipv6 remote addr", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "bare ip", remote: "10.0.0.2", want: "10.0.0.2"},
		{name: "garbage", remote: "not-an-ip", want: ""},
		{
			name: "untrusted forwarded header ignored", remote: "10.0.0.1:1",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9"}, want: "10.0.0.1",
		},
		{
			name: "trusted forwarded header", remote: "10.0.0.1:1", trust: true,
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.5"}, want: "203.0.113.9",
		},
		{
			name: "cloudflare first", remote: "10.0.0.1:1", trust: true,
			headers: map[string]string{"CF-Connecting-IP": "198.51.100.7", "X-Real-IP": "203.0.113.1"}, want: "198.51.100.7",
		},
		{
			name: "invalid header falls through", remote: "10.0.0.1:1", trust: true,
			headers: map[string]string{"X-Real-IP": "bogus"}, want: "10.0.0.1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientip.Resolve(r, tt.trust))
		})
	}
}

func TestMiddlewareAndKeyFunc(t *testing.T) {
	t.Parallel()

	var key string
	h := clientip.Middleware(false)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		key = clientip.KeyFunc(r)
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.4:1234"
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "ip:192.0.2.4", key)
	assert.Empty(t, clientip.KeyFunc(httptest.NewRequest(http.MethodGet, "/", nil)))
}
