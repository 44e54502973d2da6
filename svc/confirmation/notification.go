package confirmation

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrymomot/entitle/svc/payment"
)

// Notification is a verified provider push in canonical form.
type Notification struct {
	ID               string       `json:"id,omitempty"`
	Source           string       `json:"source"`
	Event            string       `json:"event"`
	Method           payment.Kind `json:"method,omitempty"`
	Reference        string       `json:"reference"`
	CustomerIdentity string       `json:"customerIdentity,omitempty"`
	TransactionID    string       `json:"transactionId,omitempty"`
	Status           string       `json:"status,omitempty"`
}

// DedupeKey identifies a delivery. Providers that send a delivery id are
// keyed on it; otherwise the event, reference and status are combined.
func (n Notification) DedupeKey() string {
	if n.ID != "" {
		return n.Source + ":" + n.ID
	}
	return strings.Join([]string{n.Source, n.Event, n.Reference, n.TransactionID, n.Status}, ":")
}

// Pending reports whether the push only announces a payment still in flight.
func (n Notification) Pending() bool {
	return payment.Status(strings.ToLower(n.Status)) == payment.StatusPending
}

// ConfirmTask is the queued unit of work for one notification.
type ConfirmTask struct {
	Notification Notification `json:"notification"`
	ReceivedAt   time.Time    `json:"receivedAt"`
}

// Parser verifies and decodes one provider's webhook format.
type Parser interface {
	Source() string
	// Parse authenticates the request and decodes body. Authentication
	// failures wrap ErrInvalidSignature.
	Parse(r *http.Request, body []byte) (Notification, error)
}
