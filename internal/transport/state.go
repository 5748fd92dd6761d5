package transport

import "fmt"

// ConnState is the lifecycle state of a link endpoint.
type ConnState uint8

const (
	StateIdle ConnState = iota
	StateDiscovering
	StatePairing
	StateConnected
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StatePairing:
		return "pairing"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

var legalTransitions = map[ConnState][]ConnState{
	StateIdle:        {StateDiscovering, StatePairing, StateClosing},
	StateDiscovering: {StatePairing, StateConnected, StateIdle, StateClosing},
	StatePairing:     {StateConnected, StateDiscovering, StateClosing},
	StateConnected:   {StateDiscovering, StateClosing},
	StateClosing:     {StateIdle},
}

// StateMachine guards ConnState transitions.
type StateMachine struct {
	state ConnState
}

// State returns the current state.
func (m *StateMachine) State() ConnState {
	return m.state
}

// CanTransition reports whether moving to next is legal.
func (m *StateMachine) CanTransition(next ConnState) bool {
	for _, s := range legalTransitions[m.state] {
		if s == next {
			return true
		}
	}
	return false
}

// To moves to next, or returns an error if the transition is illegal.
// Moving to the current state is a no-op.
func (m *StateMachine) To(next ConnState) error {
	if next == m.state {
		return nil
	}
	if !m.CanTransition(next) {
		return fmt.Errorf("transport: illegal transition %s -> %s", m.state, next)
	}
	m.state = next
	return nil
}
