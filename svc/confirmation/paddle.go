package confirmation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/dmitrymomot/entitle/svc/payment"
)

// PaddleParser verifies the Paddle-Signature header and decodes
// transaction.* events. Other events are rejected as malformed.
type PaddleParser struct {
	verifier *paddle.WebhookVerifier
}

func NewPaddleParser(secret string) *PaddleParser {
	return &PaddleParser{verifier: paddle.NewWebhookVerifier(secret)}
}

func (p *PaddleParser) Source() string { return "paddle" }

type paddleEvent struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Data      struct {
		ID         string         `json:"id"`
		Status     string         `json:"status"`
		CustomerID string         `json:"customer_id"`
		CustomData map[string]any `json:"custom_data"`
	} `json:"data"`
}

func (p *PaddleParser) Parse(r *http.Request, body []byte) (Notification, error) {
	// The verifier reads the body, which the handler has already drained.
	req := r.Clone(r.Context())
	req.Body = io.NopCloser(bytes.NewReader(body))
	ok, err := p.verifier.Verify(req)
	if err != nil {
		return Notification{}, errors.Join(ErrInvalidSignature, err)
	}
	if !ok {
		return Notification{}, ErrInvalidSignature
	}

	var ev paddleEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if !strings.HasPrefix(ev.EventType, "transaction.") {
		return Notification{}, fmt.Errorf("%w: unsupported event %q", ErrMalformedPayload, ev.EventType)
	}

	reference, _ := ev.Data.CustomData["reference"].(string)
	identity, _ := ev.Data.CustomData["user_id"].(string)
	if reference == "" {
		return Notification{}, ErrMissingReference
	}

	return Notification{
		ID:               ev.EventID,
		Source:           p.Source(),
		Event:            ev.EventType,
		Method:           payment.KindCard,
		Reference:        reference,
		CustomerIdentity: identity,
		TransactionID:    ev.Data.ID,
		Status:           paddleStatus(ev.Data.Status),
	}, nil
}

func paddleStatus(s string) string {
	switch s {
	case "completed", "paid":
		return string(payment.StatusSuccess)
	case "canceled", "past_due":
		return string(payment.StatusFailed)
	default:
		return string(payment.StatusPending)
	}
}
