package payment

import "errors"

var (
	ErrProviderUnavailable   = errors.New("payment: provider unavailable")
	ErrPaymentRejected       = errors.New("payment: rejected by provider")
	ErrProviderNotConfigured = errors.New("payment: provider not configured")
	ErrInvalidMethod         = errors.New("payment: invalid payment method")
	ErrInvalidPhoneNumber    = errors.New("payment: invalid phone number")
	ErrInvalidCharge         = errors.New("payment: invalid charge")
	ErrTransactionNotFound   = errors.New("payment: transaction not found")
	ErrAuthentication        = errors.New("payment: provider authentication failed")
)

// IsTransient reports whether err may succeed on a later attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}
