package sim

import (
	"fmt"
	"math/rand"
)

// Agent is one independent CTMC. It owns its mode, its payload and its RNG stream;
// the transition matrix is shared and read-only.
//
// An agent's mode and payload change only through ApplyTransition, which the
// simulator calls while applying that agent's popped event.
type Agent struct {
	ID     string
	mode   Mode
	matrix *TransitionMatrix
	state  State
	rng    *rand.Rand
}

// NewAgent creates an agent in mode initial carrying a copy of state.
// Panics if initial is not a mode of matrix or state is nil; callers validate
// configuration first (see Config.Validate).
func NewAgent(id string, initial Mode, matrix *TransitionMatrix, state State, rng *rand.Rand) *Agent {
	if !matrix.Valid(initial) {
		panic(fmt.Sprintf("NewAgent(%s): initial mode %d outside matrix of size %d", id, initial, matrix.Size()))
	}
	if state == nil {
		panic(fmt.Sprintf("NewAgent(%s): state must not be nil", id))
	}
	return &Agent{
		ID:     id,
		mode:   initial,
		matrix: matrix,
		state:  state.Clone(),
		rng:    rng,
	}
}

// CurrentMode returns the agent's current mode.
func (a *Agent) CurrentMode() Mode {
	return a.mode
}

// Matrix returns the agent's transition matrix.
func (a *Agent) Matrix() *TransitionMatrix {
	return a.matrix
}

// Snapshot returns a copy of the agent's current payload.
func (a *Agent) Snapshot() State {
	return a.state.Clone()
}

// IsAbsorbed reports whether the agent sits in an absorbing mode.
func (a *Agent) IsAbsorbed() bool {
	return a.matrix.IsAbsorbing(a.mode)
}

// NextTransition samples the agent's next transition from its current mode,
// drawing from the agent's own stream.
func (a *Agent) NextTransition() (Transition, error) {
	return SampleTransition(a.matrix.row(a.mode), a.mode, a.rng)
}

// ApplyTransition moves the agent to mode to and returns a snapshot of the new payload.
// The payload update is computed before anything is assigned, so a panicking payload
// leaves the agent untouched.
func (a *Agent) ApplyTransition(to Mode) State {
	if !a.matrix.Valid(to) {
		panic(fmt.Sprintf("ApplyTransition(%s): mode %d outside matrix of size %d", a.ID, to, a.matrix.Size()))
	}
	next := a.state.Transition(a.mode, to)
	if next == nil {
		panic(fmt.Sprintf("ApplyTransition(%s): payload %T returned nil state", a.ID, a.state))
	}
	a.state, a.mode = next, to
	return next.Clone()
}
