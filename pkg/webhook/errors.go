package webhook

import "errors"

var (
	ErrMissingSecret     = errors.New("webhook: secret is required")
	ErrEmptyPayload      = errors.New("webhook: payload is empty")
	ErrMissingSignature  = errors.New("webhook: missing signature headers")
	ErrSignatureMismatch = errors.New("webhook: signature mismatch")
	ErrSignatureExpired  = errors.New("webhook: signature timestamp outside tolerance")
	ErrCircuitOpen       = errors.New("webhook: circuit breaker is open")
)
