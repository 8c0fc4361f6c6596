package redirect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_HappyPath(t *testing.T) {
	t.Parallel()

	var seen [][2]State
	m := NewMachine(func(from, to State) { seen = append(seen, [2]State{from, to}) })

	for _, s := range []State{StateResolving, StateDeciding, StateNavigating, StateAwaitingConfirmation, StateFallbackNavigating} {
		require.NoError(t, m.Transition(s))
	}

	assert.Equal(t, StateFallbackNavigating, m.Current())
	assert.True(t, m.Current().Terminal())
	assert.Len(t, seen, 5)
	assert.Equal(t, [2]State{StateIdle, StateResolving}, seen[0])
	assert.Equal(t, []State{
		StateIdle, StateResolving, StateDeciding, StateNavigating,
		StateAwaitingConfirmation, StateFallbackNavigating,
	}, m.History())
}

func TestMachine_RejectsInvalidTransitions(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	assert.ErrorIs(t, m.Transition(StateNavigating), ErrInvalidTransition)

	require.NoError(t, m.Transition(StateResolving))
	require.NoError(t, m.Transition(StateDeciding))
	require.NoError(t, m.Transition(StateDone))

	// No path back to idle, and terminal states are final.
	assert.ErrorIs(t, m.Transition(StateIdle), ErrInvalidTransition)
	assert.ErrorIs(t, m.Transition(StateResolving), ErrInvalidTransition)
	assert.Equal(t, StateDone, m.Current())
}
