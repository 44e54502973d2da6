package jwt_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitle/pkg/jwt"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	svc, err := jwt.New(jwt.Config{Secret: "test-secret", Issuer: "entitle", TTL: time.Hour})
	require.NoError(t, err)
	token, err := svc.Issue("user-1", "ada@example.com")
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := jwt.ClaimsFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(jwt.UserID(r.Context()) + "|" + claims.Email))
	})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "valid", header: "Bearer " + token, status: http.StatusOK, body: "user-1|ada@example.com"},
		{name: "lowercase scheme", header: "bearer " + token, status: http.StatusOK, body: "user-1|ada@example.com"},
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "basic auth", header: "Basic dXNlcjpwYXNz", status: http.StatusUnauthorized},
		{name: "tampered token", header: "Bearer " + token + "x", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/subscription", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			jwt.Middleware(svc)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestMiddleware_ErrorHandler(t *testing.T) {
	t.Parallel()

	svc, err := jwt.New(jwt.Config{Secret: "test-secret"})
	require.NoError(t, err)

	var got error
	mw := jwt.Middleware(svc, jwt.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	mw(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.ErrorIs(t, got, jwt.ErrMissingToken)
}

func TestUserID_Unauthenticated(t *testing.T) {
	t.Parallel()
	assert.Empty(t, jwt.UserID(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
