// Package handler turns typed request handlers into http.HandlerFunc.
//
// A HandlerFunc receives a Context and a request value decoded by the
// configured binders, and returns a Response. Errors from binding or
// rendering, and error responses returned by handlers, go through one
// ErrorHandler that maps them to a JSON error envelope:
//
//	{"error": {"code": "limit_exceeded", "message": "...", "details": {...}}}
//
// Domain packages register ErrorMappers so their sentinel errors get stable
// status codes and error codes without the handlers knowing about HTTP.
package handler
