// Package statemachine provides an immutable, generic transition table for
// records whose state lives in storage rather than in a long-lived machine.
//
// A Table is built once with a Builder and then consulted per record:
//
//	table, err := statemachine.NewBuilder[Status, Event]().
//		Permit(Activate, Active, Trial, Inactive).
//		Permit(Cancel, Cancelled, Trial, Active).
//		Build()
//
//	next, err := table.Next(sub.Status, Activate)
//
// Tables hold no mutable state and are safe for concurrent use.
package statemachine
