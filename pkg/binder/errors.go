package binder

import "errors"

var (
	ErrUnsupportedMediaType = errors.New("binder: unsupported media type")
	ErrMissingContentType   = errors.New("binder: missing content type")
	ErrFailedToParseJSON    = errors.New("binder: failed to parse JSON body")
	ErrBodyTooLarge         = errors.New("binder: request body too large")
	ErrFailedToParsePath    = errors.New("binder: failed to parse path parameters")
	ErrFailedToParseQuery   = errors.New("binder: failed to parse query parameters")
)
