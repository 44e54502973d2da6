// Package webhook holds the HMAC signature scheme used for inbound payment
// callbacks and the circuit breaker that guards outbound provider calls.
//
// Signatures are HMAC-SHA256(secret, "<unix timestamp>.<payload>") encoded as
// hex and carried in the X-Webhook-Signature, X-Webhook-Timestamp and
// X-Webhook-ID headers. Binding the timestamp lets receivers reject replays
// older than a tolerance window.
package webhook
