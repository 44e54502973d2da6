package usage

import "errors"

var (
	ErrUnknownMetric  = errors.New("usage: unknown metric")
	ErrInvalidAmount  = errors.New("usage: amount must be positive")
	ErrMissingUserID  = errors.New("usage: missing user id")
	ErrStoreOperation = errors.New("usage: store operation failed")
)
