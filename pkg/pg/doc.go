// Package pg wires the PostgreSQL connection pool (pgx), schema migrations
// (goose over an embedded filesystem) and small helpers shared by the stores.
package pg
