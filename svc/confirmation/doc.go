// Package confirmation turns provider push notifications into payment
// confirmations.
//
// Accept runs in the request path: it verifies the delivery signature, decodes
// the provider envelope, drops duplicate deliveries and queues a ConfirmTask.
// Process runs on the queue worker: it resolves the payment reference to a
// subscription, checks that the customer identity in the push matches it and
// calls ConfirmPayment, which re-verifies the transaction with the provider.
// The push payload is never trusted for the outcome of a payment.
package confirmation
