package subscription

import (
	"errors"

	"github.com/dmitrymomot/entitle/pkg/statemachine"
)

var (
	ErrNotFound           = errors.New("subscription: not found")
	ErrAlreadyExists      = errors.New("subscription: already exists")
	ErrInvalidTransition  = statemachine.ErrInvalidTransition
	ErrUnknownTransaction = errors.New("subscription: unknown transaction")
	ErrInvalidCycle       = errors.New("subscription: invalid billing cycle")
	ErrMissingMethod      = errors.New("subscription: payment method required for paid plans")
	ErrMissingUserID      = errors.New("subscription: user id required")
	ErrStoreOperation     = errors.New("subscription: store operation failed")
	ErrNotDue             = errors.New("subscription: not due for renewal")

	// errNoChange aborts an update without writing.
	errNoChange = errors.New("subscription: no change")
)
