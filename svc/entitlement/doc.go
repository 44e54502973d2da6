// Package entitlement answers whether a user may perform a metered action
// now and how much of the quota remains.
//
// CheckUsageLimit is a plain check: two concurrent requests can both observe
// "under limit" before either records usage, so a user with N requests in
// flight may overshoot by at most N-1 units. Callers that need strict
// enforcement use Reserve (or Guard), which admits an action only when
// used + in-flight + amount fits the limit, holding the amount in a Reserver
// until the usage is recorded or the reservation is released.
package entitlement
