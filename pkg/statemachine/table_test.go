package statemachine_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitle/pkg/statemachine"
)

type state string
type event string

func TestTable(t *testing.T) {
	t.Parallel()

	table, err := statemachine.NewBuilder[state, event]().
		Permit("start", "running", "idle", "paused").
		Permit("pause", "paused", "running").
		Permit("stop", "idle", "running", "paused").
		Build()
	require.NoError(t, err)

	next, err := table.Next("idle", "start")
	require.NoError(t, err)
	assert.Equal(t, state("running"), next)

	_, err = table.Next("idle", "pause")
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)
	assert.True(t, statemachine.IsNoTransitionAvailableError(err))

	var nt *statemachine.ErrNoTransitionAvailable
	require.True(t, errors.As(err, &nt))
	assert.Equal(t, "idle", nt.StateName)
	assert.Equal(t, "pause", nt.EventName)

	assert.True(t, table.CanFire("paused", "stop"))
	assert.False(t, table.CanFire("idle", "stop"))
	assert.Equal(t, []event{"pause", "stop"}, table.Events("running"))
}

func TestBuilderErrors(t *testing.T) {
	t.Parallel()

	_, err := statemachine.NewBuilder[state, event]().Permit("go", "b").Build()
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)

	_, err = statemachine.NewBuilder[state, event]().
		Permit("go", "b", "a").
		Permit("go", "c", "a").
		Build()
	assert.ErrorIs(t, err, statemachine.ErrConflictingTargets)

	_, err = statemachine.NewBuilder[state, event]().
		Permit("go", "b", "a").
		Permit("go", "b", "a").
		Build()
	assert.NoError(t, err, "repeating an identical transition is allowed")

	assert.Panics(t, func() {
		statemachine.NewBuilder[state, event]().Permit("", "b", "a").MustBuild()
	})
}
