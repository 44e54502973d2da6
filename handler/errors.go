package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrymomot/entitle/pkg/validator"
)

var ErrNilResponse = errors.New("handler: nil response")

// HTTPError is an error with a status code and a stable machine-readable code.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	err     error
}

func (e *HTTPError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.err)
	}
	return e.Code
}

func (e *HTTPError) Unwrap() error { return e.err }

// NewHTTPError builds an HTTPError. Message defaults to the status text.
func NewHTTPError(status int, code, message string) *HTTPError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &HTTPError{Status: status, Code: code, Message: message}
}

// Wrap returns a copy of e carrying cause.
func (e *HTTPError) Wrap(cause error) *HTTPError {
	c := *e
	c.err = cause
	return &c
}

// WithDetails returns a copy of e with details attached to the response.
func (e *HTTPError) WithDetails(details map[string]any) *HTTPError {
	c := *e
	c.Details = details
	return &c
}

var (
	ErrBadRequest      = NewHTTPError(http.StatusBadRequest, "bad_request", "")
	ErrUnauthorized    = NewHTTPError(http.StatusUnauthorized, "unauthorized", "")
	ErrNotFound        = NewHTTPError(http.StatusNotFound, "not_found", "")
	ErrConflict        = NewHTTPError(http.StatusConflict, "conflict", "")
	ErrTooManyRequests = NewHTTPError(http.StatusTooManyRequests, "too_many_requests", "")
	ErrInternal        = NewHTTPError(http.StatusInternalServerError, "internal_error", "An error occurred processing your request")
	ErrUnavailable     = NewHTTPError(http.StatusServiceUnavailable, "service_unavailable", "")
)

// BadRequest marks a binding failure as a 400.
func BadRequest(err error) error {
	var he *HTTPError
	if errors.As(err, &he) {
		return err
	}
	if validator.Extract(err) != nil {
		return err
	}
	return &HTTPError{Status: http.StatusBadRequest, Code: "bad_request", Message: err.Error(), err: err}
}
