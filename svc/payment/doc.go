// Package payment abstracts the payment providers behind two operations:
// Initiate starts a charge and returns a correlation Handle, Verify reports
// the canonical Status of a transaction.
//
// Payment methods form a closed set (card, MTN Mobile Money, Airtel Money);
// each Method variant carries only the fields its provider needs, and the
// Gateway routes calls by Method kind, so adding a provider means adding a
// variant and a Provider implementation.
//
// Provider failures are classified, never retried inline:
//
//   - ErrProviderUnavailable: network error, timeout, 5xx, 429 or an open circuit.
//   - ErrPaymentRejected: the provider explicitly declined the request.
package payment
