package config

import "errors"

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct.
	ErrParsingConfig = errors.New("config: failed to parse environment variables")

	// ErrNilPointer is returned when a nil pointer is provided to Load.
	ErrNilPointer = errors.New("config: nil pointer provided to loader")

	// ErrMissingSecret is returned by Validate implementations when an enabled component lacks a secret.
	ErrMissingSecret = errors.New("config: missing required secret")

	// ErrInvalidValue is returned by Validate implementations for out-of-range settings.
	ErrInvalidValue = errors.New("config: invalid value")
)
