package stream

// State is the lifecycle state of a stream session
type State int

const (
	StateIdle State = iota
	StateStarting
	StateStreaming
	StateCompleted
	StateAborted
	StateErrored
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are possible
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateErrored
}

// CanTransition reports whether moving from s to next is allowed
func (s State) CanTransition(next State) bool {
	switch s {
	case StateIdle:
		return next == StateStarting
	case StateStarting, StateStreaming:
		return next == StateStreaming || next.IsTerminal()
	default:
		return false
	}
}
