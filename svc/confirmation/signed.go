package confirmation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrymomot/entitle/pkg/webhook"
	"github.com/dmitrymomot/entitle/svc/payment"
)

// SignedParser accepts the generic envelope
//
//	{"event": "...", "data": {"reference", "customerIdentity", "status", "transactionId", "method"}}
//
// signed with HMAC-SHA256 over "timestamp.payload" in X-Webhook-Signature.
type SignedParser struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewSignedParser(secret string, tolerance time.Duration) *SignedParser {
	return &SignedParser{secret: secret, tolerance: tolerance, now: time.Now}
}

// WithClock overrides time.Now for the timestamp tolerance check.
func (p *SignedParser) WithClock(now func() time.Time) *SignedParser {
	p.now = now
	return p
}

func (p *SignedParser) Source() string { return "signed" }

type signedEnvelope struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Data  struct {
		Reference        string `json:"reference"`
		CustomerIdentity string `json:"customerIdentity"`
		Status           string `json:"status"`
		TransactionID    string `json:"transactionId"`
		Method           string `json:"method"`
	} `json:"data"`
}

func (p *SignedParser) Parse(r *http.Request, body []byte) (Notification, error) {
	sig, err := webhook.FromHeaders(r.Header)
	if err != nil {
		return Notification{}, errors.Join(ErrInvalidSignature, err)
	}
	if err := webhook.Verify(p.secret, body, sig, p.tolerance, p.now()); err != nil {
		return Notification{}, errors.Join(ErrInvalidSignature, err)
	}

	var env signedEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Data.Reference == "" {
		return Notification{}, ErrMissingReference
	}

	id := sig.ID
	if id == "" {
		id = env.ID
	}
	n := Notification{
		ID:               id,
		Source:           p.Source(),
		Event:            env.Event,
		Reference:        env.Data.Reference,
		CustomerIdentity: env.Data.CustomerIdentity,
		TransactionID:    env.Data.TransactionID,
		Status:           env.Data.Status,
	}
	if k := payment.Kind(env.Data.Method); k.Valid() {
		n.Method = k
	}
	return n, nil
}
