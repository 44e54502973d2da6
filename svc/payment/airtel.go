package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/dmitrymomot/entitle/pkg/webhook"
)

// AirtelProvider collects payments with Airtel Money USSD push.
type AirtelProvider struct {
	cfg AirtelConfig
	api *apiClient
}

// NewAirtelProvider creates the Airtel adapter from its config and the shared settings.
func NewAirtelProvider(cfg AirtelConfig, shared Config) *AirtelProvider {
	hc := newHTTPClient(shared.RequestTimeout)
	p := &AirtelProvider{cfg: cfg}
	p.api = &apiClient{
		baseURL: cfg.BaseURL,
		http:    hc,
		tokens:  NewTokenCache(p.tokenFetcher(hc), shared.TokenSkew),
		breaker: webhook.NewCircuitBreaker(shared.BreakerFailures, shared.BreakerSuccesses, shared.BreakerRecovery),
		headers: http.Header{
			"X-Country":  {cfg.Country},
			"X-Currency": {cfg.Currency},
		},
	}
	return p
}

func (p *AirtelProvider) Kind() Kind { return KindAirtel }

func (p *AirtelProvider) tokenFetcher(hc *http.Client) TokenFetcher {
	cc := clientcredentials.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		TokenURL:     strings.TrimRight(p.cfg.BaseURL, "/") + "/auth/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return func(ctx context.Context) (*oauth2.Token, error) {
		tok, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, hc))
		if err == nil {
			return tok, nil
		}
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			switch rerr.Response.StatusCode {
			case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
				return nil, errors.Join(ErrProviderUnavailable, ErrAuthentication, err)
			}
		}
		return nil, fmt.Errorf("%w: token: %w", ErrProviderUnavailable, err)
	}
}

type airtelSubscriber struct {
	Country  string `json:"country"`
	Currency string `json:"currency"`
	MSISDN   string `json:"msisdn"`
}

type airtelTransaction struct {
	Amount   float64 `json:"amount"`
	Country  string  `json:"country"`
	Currency string  `json:"currency"`
	ID       string  `json:"id"`
}

type airtelPaymentRequest struct {
	Reference   string            `json:"reference"`
	Subscriber  airtelSubscriber  `json:"subscriber"`
	Transaction airtelTransaction `json:"transaction"`
}

type airtelStatusBlock struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	ResultCode string `json:"result_code"`
	Success    bool   `json:"success"`
}

type airtelResponse struct {
	Data struct {
		Transaction struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			AirtelMoneyID string `json:"airtel_money_id"`
			Message       string `json:"message"`
		} `json:"transaction"`
	} `json:"data"`
	Status airtelStatusBlock `json:"status"`
}

// Initiate pushes a payment prompt to the subscriber. The transaction id is
// generated locally and echoed back by Airtel in status lookups.
func (p *AirtelProvider) Initiate(ctx context.Context, m Method, c Charge) (Handle, error) {
	method, ok := m.(AirtelMethod)
	if !ok {
		return Handle{}, fmt.Errorf("%w: expected %s, got %s", ErrInvalidMethod, KindAirtel, m.Kind())
	}

	cur, err := collectCurrency(c, p.cfg.Currency)
	if err != nil {
		return Handle{}, err
	}
	amount, err := strconv.ParseFloat(majorUnits(c.Amount, cur), 64)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %w", ErrInvalidCharge, err)
	}

	txID := c.Reference
	var out airtelResponse
	if _, err := p.api.call(ctx, apiRequest{
		method: http.MethodPost,
		path:   "/merchant/v1/payments/",
		body: airtelPaymentRequest{
			Reference: c.Description,
			Subscriber: airtelSubscriber{
				Country:  p.cfg.Country,
				Currency: cur,
				MSISDN:   p.localMSISDN(method.PhoneNumber),
			},
			Transaction: airtelTransaction{
				Amount:   amount,
				Country:  p.cfg.Country,
				Currency: cur,
				ID:       txID,
			},
		},
	}, &out); err != nil {
		return Handle{}, err
	}
	if !out.Status.Success {
		return Handle{}, fmt.Errorf("%w: %s %s", ErrPaymentRejected, out.Status.ResultCode, out.Status.Message)
	}
	if out.Data.Transaction.ID != "" {
		txID = out.Data.Transaction.ID
	}

	return Handle{TransactionID: txID, Reference: c.Reference}, nil
}

// Verify looks up the transaction enquiry status.
func (p *AirtelProvider) Verify(ctx context.Context, transactionID string) (Status, error) {
	var out airtelResponse
	if _, err := p.api.call(ctx, apiRequest{
		method: http.MethodGet,
		path:   "/standard/v1/payments/" + url.PathEscape(transactionID),
	}, &out); err != nil {
		return "", err
	}
	return airtelCanonicalStatus(out.Data.Transaction.Status), nil
}

// localMSISDN strips the country dialing prefix Airtel expects to be omitted.
func (p *AirtelProvider) localMSISDN(phone string) string {
	if code, ok := airtelDialCodes[strings.ToUpper(p.cfg.Country)]; ok {
		return strings.TrimPrefix(phone, code)
	}
	return phone
}

var airtelDialCodes = map[string]string{
	"UG": "256", "KE": "254", "TZ": "255", "RW": "250", "ZM": "260",
	"MW": "265", "NG": "234", "CD": "243", "MG": "261", "NE": "227",
	"TD": "235", "GA": "241", "CG": "242", "SC": "248",
}

func airtelCanonicalStatus(s string) Status {
	switch strings.ToUpper(s) {
	case "TS":
		return StatusSuccess
	case "TF", "TE", "TA":
		return StatusFailed
	default:
		return StatusPending
	}
}
