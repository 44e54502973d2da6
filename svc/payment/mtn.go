package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/entitle/pkg/webhook"
)

// MTNProvider collects payments with MTN Mobile Money request-to-pay.
type MTNProvider struct {
	cfg MTNConfig
	api *apiClient
}

// NewMTNProvider creates the MTN adapter from its config and the shared settings.
func NewMTNProvider(cfg MTNConfig, shared Config) *MTNProvider {
	hc := newHTTPClient(shared.RequestTimeout)
	p := &MTNProvider{cfg: cfg}
	p.api = &apiClient{
		baseURL: cfg.BaseURL,
		http:    hc,
		tokens:  NewTokenCache(p.tokenFetcher(hc), shared.TokenSkew),
		breaker: webhook.NewCircuitBreaker(shared.BreakerFailures, shared.BreakerSuccesses, shared.BreakerRecovery),
		headers: http.Header{
			"Ocp-Apim-Subscription-Key": {cfg.SubscriptionKey},
			"X-Target-Environment":      {cfg.TargetEnvironment},
		},
	}
	return p
}

func (p *MTNProvider) Kind() Kind { return KindMTN }

func (p *MTNProvider) tokenFetcher(hc *http.Client) TokenFetcher {
	return func(ctx context.Context) (*oauth2.Token, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(p.cfg.BaseURL, "/")+"/collection/token/", nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		}
		req.SetBasicAuth(p.cfg.APIUser, p.cfg.APIKey)
		req.Header.Set("Ocp-Apim-Subscription-Key", p.cfg.SubscriptionKey)

		tok, err := fetchToken(ctx, hc, req)
		if err != nil {
			return nil, err
		}
		return &oauth2.Token{
			AccessToken: tok.AccessToken,
			TokenType:   "Bearer",
			Expiry:      time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
		}, nil
	}
}

type mtnParty struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type mtnRequestToPay struct {
	Amount       string   `json:"amount"`
	Currency     string   `json:"currency"`
	ExternalID   string   `json:"externalId"`
	Payer        mtnParty `json:"payer"`
	PayerMessage string   `json:"payerMessage"`
	PayeeNote    string   `json:"payeeNote"`
}

type mtnStatus struct {
	Status                 string `json:"status"`
	FinancialTransactionID string `json:"financialTransactionId"`
	Reason                 any    `json:"reason,omitempty"`
}

// Initiate sends a request-to-pay prompt to the payer's handset. The returned
// transaction id is the X-Reference-Id used to poll the status.
func (p *MTNProvider) Initiate(ctx context.Context, m Method, c Charge) (Handle, error) {
	method, ok := m.(MTNMethod)
	if !ok {
		return Handle{}, fmt.Errorf("%w: expected %s, got %s", ErrInvalidMethod, KindMTN, m.Kind())
	}

	cur, err := collectCurrency(c, p.cfg.Currency)
	if err != nil {
		return Handle{}, err
	}

	txID := uuid.NewString()
	hdr := http.Header{"X-Reference-Id": {txID}}
	if p.cfg.CallbackURL != "" {
		hdr.Set("X-Callback-Url", p.cfg.CallbackURL)
	}

	_, err = p.api.call(ctx, apiRequest{
		method:  http.MethodPost,
		path:    "/collection/v1_0/requesttopay",
		headers: hdr,
		body: mtnRequestToPay{
			Amount:       majorUnits(c.Amount, cur),
			Currency:     cur,
			ExternalID:   c.Reference,
			Payer:        mtnParty{PartyIDType: "MSISDN", PartyID: method.PhoneNumber},
			PayerMessage: c.Description,
			PayeeNote:    c.Description,
		},
	}, nil)
	if err != nil {
		return Handle{}, err
	}

	return Handle{TransactionID: txID, Reference: c.Reference}, nil
}

// Verify polls the request-to-pay status.
func (p *MTNProvider) Verify(ctx context.Context, transactionID string) (Status, error) {
	var out mtnStatus
	if _, err := p.api.call(ctx, apiRequest{
		method: http.MethodGet,
		path:   "/collection/v1_0/requesttopay/" + url.PathEscape(transactionID),
	}, &out); err != nil {
		return "", err
	}
	return mtnCanonicalStatus(out.Status), nil
}

func mtnCanonicalStatus(s string) Status {
	switch strings.ToUpper(s) {
	case "SUCCESSFUL":
		return StatusSuccess
	case "FAILED", "REJECTED", "TIMEOUT":
		return StatusFailed
	default:
		return StatusPending
	}
}
