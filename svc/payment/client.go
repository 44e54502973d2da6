package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dmitrymomot/entitle/pkg/webhook"
)

const maxResponseBody = 1 << 20

// newHTTPClient returns an instrumented client bounded by timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// apiClient performs authenticated JSON calls against a mobile money API and
// classifies the outcome into the package errors.
type apiClient struct {
	baseURL string
	http    *http.Client
	tokens  *TokenCache
	breaker *webhook.CircuitBreaker
	headers http.Header
}

type apiRequest struct {
	method  string
	path    string
	headers http.Header
	body    any
}

func (c *apiClient) call(ctx context.Context, r apiRequest, out any) (int, error) {
	if !c.breaker.Allow() {
		return 0, errors.Join(ErrProviderUnavailable, webhook.ErrCircuitOpen)
	}

	status, err := c.send(ctx, r, out, true)
	if IsTransient(err) {
		c.breaker.RecordFailure()
	} else {
		c.breaker.RecordSuccess()
	}
	return status, err
}

func (c *apiClient) send(ctx context.Context, r apiRequest, out any, retryAuth bool) (int, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, err
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return 0, fmt.Errorf("%w: encode request: %w", ErrInvalidCharge, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, strings.TrimRight(c.baseURL, "/")+r.path, body)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	for k, vs := range c.headers {
		req.Header[k] = vs
	}
	for k, vs := range r.headers {
		req.Header[k] = vs
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read response: %w", ErrProviderUnavailable, err)
	}

	code := resp.StatusCode
	switch {
	case code == http.StatusUnauthorized && retryAuth:
		c.tokens.Invalidate(token)
		return c.send(ctx, r, out, false)
	case code >= 200 && code < 300:
		if out != nil && len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return code, fmt.Errorf("%w: malformed response: %w", ErrProviderUnavailable, err)
			}
		}
		return code, nil
	case code == http.StatusNotFound:
		return code, ErrTransactionNotFound
	case code == http.StatusUnauthorized:
		return code, errors.Join(ErrProviderUnavailable, ErrAuthentication)
	case code == http.StatusTooManyRequests || code >= 500:
		return code, fmt.Errorf("%w: status %d", ErrProviderUnavailable, code)
	default:
		return code, fmt.Errorf("%w: status %d: %s", ErrPaymentRejected, code, snippet(raw))
	}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}

// fetchToken posts to a token endpoint and decodes an OAuth style response.
func fetchToken(ctx context.Context, hc *http.Client, req *http.Request) (*oauth2Token, error) {
	resp, err := hc.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: token: %w", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.Join(ErrProviderUnavailable, ErrAuthentication)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: token: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var tok oauth2Token
	if err := json.Unmarshal(raw, &tok); err != nil || tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: token: malformed response", ErrProviderUnavailable)
	}
	return &tok, nil
}

type oauth2Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
