package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition  = errors.New("statemachine: invalid transition")
	ErrConflictingTargets = errors.New("statemachine: event has conflicting targets for one state")
)

// ErrNoTransitionAvailable reports an event that is not permitted from a state.
// It matches ErrInvalidTransition with errors.Is.
type ErrNoTransitionAvailable struct {
	StateName string
	EventName string
}

func (e *ErrNoTransitionAvailable) Error() string {
	return fmt.Sprintf("statemachine: no transition from state '%s' for event '%s'", e.StateName, e.EventName)
}

func (e *ErrNoTransitionAvailable) Is(target error) bool {
	return target == ErrInvalidTransition
}

func IsNoTransitionAvailableError(err error) bool {
	var e *ErrNoTransitionAvailable
	return errors.As(err, &e)
}
