package enforcer

import "fmt"

// State is the lifecycle state of a window
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateSuspended
	StateClosed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateSuspended:
		return "suspended"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// canTransition reports whether from -> to is a legal lifecycle step.
// Suspended may be re-entered when a load is replaced by another one.
func canTransition(from, to State) bool {
	switch from {
	case StateUninitialized:
		return to == StateActive || to == StateClosed
	case StateActive:
		return to == StateSuspended || to == StateClosed
	case StateSuspended:
		return to == StateActive || to == StateSuspended || to == StateClosed
	default:
		return false
	}
}

// TransitionError reports an illegal lifecycle step
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal window transition %s -> %s", e.From, e.To)
}
