package handler

import (
	"encoding/json"
	"net/http"
)

// JSONResponse is the envelope of every JSON body.
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
}

type jsonResponse struct {
	status int
	body   JSONResponse
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

type JSONOption func(*jsonResponse)

func WithJSONStatus(status int) JSONOption {
	return func(r *jsonResponse) { r.status = status }
}

func WithJSONMeta(meta map[string]any) JSONOption {
	return func(r *jsonResponse) { r.body.Meta = meta }
}

// JSON wraps v in the data envelope. A JSONResponse is rendered as is.
func JSON(v any, opts ...JSONOption) Response {
	r := &jsonResponse{status: http.StatusOK}
	if env, ok := v.(JSONResponse); ok {
		r.body = env
	} else {
		r.body.Data = v
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// errorResponse defers to the configured ErrorHandler.
type errorResponse struct {
	err error
}

func (e errorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	DefaultErrorHandler(NewContext(w, r), e.err)
	return nil
}

// Error returns a Response rendered by the ErrorHandler passed to Wrap.
func Error(err error) Response {
	return errorResponse{err: err}
}

type emptyResponse struct {
	status int
}

func (e emptyResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(e.status)
	return nil
}

// Empty answers 204 No Content.
func Empty() Response {
	return emptyResponse{status: http.StatusNoContent}
}

func EmptyWithStatus(status int) Response {
	return emptyResponse{status: status}
}
