package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderID        = "X-Webhook-ID"
)

// Signature is the authentication data attached to a delivery.
type Signature struct {
	Value     string
	Timestamp int64
	ID        string
}

// Apply sets the signature headers on h.
func (s Signature) Apply(h http.Header) {
	h.Set(HeaderSignature, s.Value)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
	if s.ID != "" {
		h.Set(HeaderID, s.ID)
	}
}

// Sign signs payload at time at with a fresh delivery id.
func Sign(secret string, payload []byte, at time.Time) (Signature, error) {
	if secret == "" {
		return Signature{}, ErrMissingSecret
	}
	if len(payload) == 0 {
		return Signature{}, ErrEmptyPayload
	}
	ts := at.Unix()
	return Signature{Value: compute(secret, ts, payload), Timestamp: ts, ID: uuid.NewString()}, nil
}

// FromHeaders reads a signature from request headers.
func FromHeaders(h http.Header) (Signature, error) {
	sig := Signature{Value: h.Get(HeaderSignature), ID: h.Get(HeaderID)}
	ts, err := strconv.ParseInt(h.Get(HeaderTimestamp), 10, 64)
	if err != nil || sig.Value == "" {
		return Signature{}, ErrMissingSignature
	}
	sig.Timestamp = ts
	return sig, nil
}

// Verify checks sig against payload. A positive tolerance rejects signatures
// whose timestamp is further than tolerance from now in either direction.
func Verify(secret string, payload []byte, sig Signature, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return ErrMissingSecret
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if sig.Value == "" {
		return ErrMissingSignature
	}

	if tolerance > 0 {
		skew := now.Sub(time.Unix(sig.Timestamp, 0))
		if skew > tolerance || skew < -tolerance {
			return ErrSignatureExpired
		}
	}

	expected := compute(secret, sig.Timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(sig.Value)) {
		return ErrSignatureMismatch
	}
	return nil
}

func compute(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
