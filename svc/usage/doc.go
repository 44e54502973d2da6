// Package usage implements the append-only usage ledger.
//
// Every metered action is stored as an Event inside the Record of the user
// for the current UTC day. Records of past days are never written again, and
// quota consumption is always computed by summing events, so there is no
// separately maintained counter that could drift from the ledger.
package usage
