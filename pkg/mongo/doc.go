// Package mongo connects the MongoDB client backing the alternative usage ledger.
package mongo
