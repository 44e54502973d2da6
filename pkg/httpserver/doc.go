// Package httpserver runs the API over net/http with graceful shutdown and
// provides liveness and readiness handlers.
//
// Run blocks until its context is cancelled, then drains in-flight requests
// for at most the configured shutdown timeout. Signal handling belongs to the
// caller, typically via signal.NotifyContext in main.
package httpserver
