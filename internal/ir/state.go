package ir

import (
	"fmt"
	"strings"
)

// StateID identifies one lifecycle state. The set is closed: rules that
// reference anything outside ValidStates are rejected at registration.
type StateID string

const (
	StateIdle          StateID = "IDLE"
	StateIdleCoast     StateID = "IDLE_COAST"
	StateReady         StateID = "READY"
	StateReadyCoast    StateID = "READY_COAST"
	StateCommitPointer StateID = "COMMIT_POINTER"
	StateCommitCoast   StateID = "COMMIT_COAST"
)

// Baseline is the state every coast timeout and ForceIdle returns to.
const Baseline = StateIdle

// ValidStates lists every StateID in declaration order.
var ValidStates = []StateID{
	StateIdle,
	StateIdleCoast,
	StateReady,
	StateReadyCoast,
	StateCommitPointer,
	StateCommitCoast,
}

// coastOf maps each active state to its degraded shadow.
var coastOf = map[StateID]StateID{
	StateIdle:          StateIdleCoast,
	StateReady:         StateReadyCoast,
	StateCommitPointer: StateCommitCoast,
}

// activeOf is the inverse of coastOf.
var activeOf = map[StateID]StateID{
	StateIdleCoast:   StateIdle,
	StateReadyCoast:  StateReady,
	StateCommitCoast: StateCommitPointer,
}

// Valid reports whether s is one of ValidStates.
func (s StateID) Valid() bool {
	_, active := coastOf[s]
	_, coast := activeOf[s]
	return active || coast
}

// IsCoast reports whether s is a degraded *_COAST state.
func (s StateID) IsCoast() bool {
	_, ok := activeOf[s]
	return ok
}

// CoastOf returns the coast variant of an active state.
// Returns false for coast states and unknown ids.
func (s StateID) CoastOf() (StateID, bool) {
	c, ok := coastOf[s]
	return c, ok
}

// ActiveOf returns the active counterpart of a coast state,
// or s itself when s is already active.
func (s StateID) ActiveOf() StateID {
	if a, ok := activeOf[s]; ok {
		return a
	}
	return s
}

// IsLatched reports whether the state persists until an explicit exit rule.
// Coast states report the latch flag of their underlying active state.
func (s StateID) IsLatched() bool {
	switch s.ActiveOf() {
	case StateReady, StateCommitPointer:
		return true
	default:
		return false
	}
}

// IsPinching reports whether the state represents an engaged commit.
func (s StateID) IsPinching() bool {
	return s.ActiveOf() == StateCommitPointer
}

func (s StateID) String() string {
	return string(s)
}

// ParseStateID converts a string to a StateID, accepting any letter case.
// A few historical aliases ("COMMIT" for COMMIT_POINTER) are also accepted.
func ParseStateID(s string) (StateID, error) {
	up := StateID(strings.ToUpper(strings.TrimSpace(s)))
	switch up {
	case "COMMIT":
		return StateCommitPointer, nil
	case "COMMIT_POINTER_COAST":
		return StateCommitCoast, nil
	}
	if !up.Valid() {
		return "", fmt.Errorf("unknown state %q", s)
	}
	return up, nil
}

// StateNames returns ValidStates as plain strings.
func StateNames() []string {
	names := make([]string, len(ValidStates))
	for i, s := range ValidStates {
		names[i] = string(s)
	}
	return names
}
