package statemachine

import (
	"fmt"
	"slices"
)

// Table maps (state, event) pairs to target states.
type Table[S, E ~string] struct {
	next map[E]map[S]S
}

// Next returns the state reached from 'from' when event fires.
func (t *Table[S, E]) Next(from S, event E) (S, error) {
	if to, ok := t.next[event][from]; ok {
		return to, nil
	}
	var zero S
	return zero, &ErrNoTransitionAvailable{StateName: string(from), EventName: string(event)}
}

// CanFire reports whether event is permitted from state.
func (t *Table[S, E]) CanFire(from S, event E) bool {
	_, ok := t.next[event][from]
	return ok
}

// Events lists the events permitted from state, sorted by name.
func (t *Table[S, E]) Events(from S) []E {
	var out []E
	for e, m := range t.next {
		if _, ok := m[from]; ok {
			out = append(out, e)
		}
	}
	slices.Sort(out)
	return out
}

// Builder collects transitions for a Table.
type Builder[S, E ~string] struct {
	next map[E]map[S]S
	err  error
}

func NewBuilder[S, E ~string]() *Builder[S, E] {
	return &Builder[S, E]{next: make(map[E]map[S]S)}
}

// Permit allows event to move any of the from states to 'to'.
func (b *Builder[S, E]) Permit(event E, to S, from ...S) *Builder[S, E] {
	if b.err != nil {
		return b
	}
	if event == "" || to == "" || len(from) == 0 {
		b.err = fmt.Errorf("%w: event %q to %q from %v", ErrInvalidTransition, event, to, from)
		return b
	}
	m, ok := b.next[event]
	if !ok {
		m = make(map[S]S, len(from))
		b.next[event] = m
	}
	for _, s := range from {
		if prev, ok := m[s]; ok && prev != to {
			b.err = fmt.Errorf("%w: %s from %s goes to %s and %s", ErrConflictingTargets, event, s, prev, to)
			return b
		}
		m[s] = to
	}
	return b
}

// Build returns the table or the first error recorded by Permit.
func (b *Builder[S, E]) Build() (*Table[S, E], error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Table[S, E]{next: b.next}, nil
}

// MustBuild is like Build but panics on error. Intended for package-level tables.
func (b *Builder[S, E]) MustBuild() *Table[S, E] {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}
