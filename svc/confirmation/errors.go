package confirmation

import "errors"

var (
	ErrInvalidSignature   = errors.New("confirmation: invalid webhook signature")
	ErrMalformedPayload   = errors.New("confirmation: malformed webhook payload")
	ErrMissingReference   = errors.New("confirmation: notification carries no payment reference")
	ErrIdentityMismatch   = errors.New("confirmation: customer identity does not match subscription")
	ErrUnknownTransaction = errors.New("confirmation: no transaction recorded for reference")
	ErrPayloadTooLarge    = errors.New("confirmation: webhook payload too large")
)
