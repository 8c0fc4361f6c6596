package redirect

import (
	"errors"
	"fmt"
	"sync"
)

// State is a step in a single visit's redirection lifecycle.
type State string

const (
	StateIdle                 State = "idle"
	StateResolving            State = "resolving"
	StateDeciding             State = "deciding"
	StateNavigating           State = "navigating"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateDone                 State = "done"
	StateFallbackNavigating   State = "fallback_navigating"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFallbackNavigating
}

// ErrInvalidTransition is returned for transitions not in the lifecycle.
var ErrInvalidTransition = errors.New("invalid state transition")

// There is no edge back to idle: a visit is a single pass.
var transitions = map[State][]State{
	StateIdle:                 {StateResolving},
	StateResolving:            {StateDeciding},
	StateDeciding:             {StateNavigating, StateDone},
	StateNavigating:           {StateAwaitingConfirmation, StateDone},
	StateAwaitingConfirmation: {StateDone, StateFallbackNavigating},
}

// Observer is notified after every successful transition.
type Observer func(from, to State)

// Machine tracks one visit's state and notifies observers of changes.
type Machine struct {
	mu        sync.Mutex
	current   State
	history   []State
	observers []Observer
}

// NewMachine returns a Machine in StateIdle.
func NewMachine(observers ...Observer) *Machine {
	return &Machine{
		current:   StateIdle,
		history:   []State{StateIdle},
		observers: observers,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns every state visited, in order.
func (m *Machine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, len(m.history))
	copy(out, m.history)
	return out
}

// Transition moves to the given state if the lifecycle allows it.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.current
	if !allowed(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.current = to
	m.history = append(m.history, to)
	observers := m.observers
	m.mu.Unlock()

	for _, obs := range observers {
		obs(from, to)
	}
	return nil
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
