package conn

import "fmt"

// State is the lifecycle state of the live connection. Exactly one connection
// exists per room session and transitions are serialized.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// legalTransitions lists every edge of the connection state machine.
// StateClosed and StateFailed are terminal.
var legalTransitions = map[State][]State{
	StateIdle:       {StateConnecting},
	StateConnecting: {StateOpen, StateClosing, StateFailed},
	StateOpen:       {StateClosing, StateFailed},
	StateClosing:    {StateClosed},
	StateClosed:     nil,
	StateFailed:     nil,
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	return len(legalTransitions[s]) == 0
}
