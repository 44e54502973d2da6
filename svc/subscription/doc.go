// Package subscription owns the per-user subscription record and its
// lifecycle: trial, active, pending_payment, cancelled and inactive.
//
// State changes go through a fixed transition table and are applied with the
// Store's atomic read-modify-write, so concurrent confirmations (webhook and
// client polling) and the expiration sweep never clobber each other.
// Provider calls are made outside the store lock.
//
// Payment confirmation is idempotent on (userID, transactionID): a paid
// billing entry for the transaction turns any further confirmation into a
// no-op that reports Result.Duplicate.
package subscription
