package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/entitle/pkg/logger"
	"github.com/dmitrymomot/entitle/pkg/requestid"
	"github.com/dmitrymomot/entitle/pkg/validator"
)

// ErrorHandler writes the response for an error.
type ErrorHandler func(ctx Context, err error)

// ErrorMapper translates domain errors. It reports false for errors it does
// not know.
type ErrorMapper func(err error) (*HTTPError, bool)

// DefaultErrorHandler writes the JSON envelope without logging or mappers.
func DefaultErrorHandler(ctx Context, err error) {
	WriteError(ctx.ResponseWriter(), ctx.Request(), classify(err, nil))
}

// NewErrorHandler logs every error, client errors at warn and server errors
// at error, and writes the JSON envelope. Mappers run in order before the
// built-in classification.
func NewErrorHandler(log *slog.Logger, mappers ...ErrorMapper) ErrorHandler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(logger.Component("http"))

	return func(ctx Context, err error) {
		he := classify(err, mappers)
		r := ctx.Request()

		level := slog.LevelWarn
		if he.Status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.LogAttrs(r.Context(), level, "request failed",
			logger.Error(err),
			slog.Int("status", he.Status),
			slog.String("code", he.Code),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		WriteError(ctx.ResponseWriter(), r, he)
	}
}

// HTTPErrorWriter adapts an ErrorHandler for middleware outside Wrap.
func HTTPErrorWriter(h ErrorHandler) func(w http.ResponseWriter, r *http.Request, err error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		h(NewContext(w, r), err)
	}
}

func classify(err error, mappers []ErrorMapper) *HTTPError {
	for _, m := range mappers {
		if he, ok := m(err); ok {
			return he
		}
	}

	if ve := validator.Extract(err); ve != nil {
		details := make(map[string]any, len(ve))
		for f, msgs := range ve.Fields() {
			details[f] = msgs
		}
		return NewHTTPError(http.StatusUnprocessableEntity, "validation_error", "Validation failed").WithDetails(details)
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}
	return ErrInternal
}

// WriteError renders he as the JSON error envelope.
func WriteError(w http.ResponseWriter, r *http.Request, he *HTTPError) {
	body := JSONResponse{Error: &ErrorDetail{
		Code:      he.Code,
		Message:   he.Message,
		Details:   he.Details,
		RequestID: requestid.FromContext(r.Context()),
	}}
	_ = JSON(body, WithJSONStatus(he.Status)).Render(w, r)
}
