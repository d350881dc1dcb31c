// Package streamstate defines the lifecycle of an observed generation stream.
package streamstate

// State is a stream's position in its lifecycle.
type State string

const (
	// Open means the stream is registered but no chunk has arrived yet.
	Open State = "open"

	// Streaming means chunks are being received and interpreted.
	Streaming State = "streaming"

	// Completed means the producer ended the stream normally.
	Completed State = "completed"

	// Failed means reading or opening the stream failed.
	Failed State = "failed"

	// Cancelled means the consumer stopped the stream.
	Cancelled State = "cancelled"
)

func (s State) String() string {
	return string(s)
}

// IsTerminal returns true if no further transitions are possible.
func (s State) IsTerminal() bool {
	switch s {
	case Completed, Failed, Cancelled:
		return true
	}
	return false
}

// IsActive returns true while chunks may still arrive.
func (s State) IsActive() bool {
	switch s {
	case Open, Streaming:
		return true
	}
	return false
}

// ValidTransitions maps each state to the states it may move to.
var ValidTransitions = map[State][]State{
	Open:      {Streaming, Completed, Failed, Cancelled},
	Streaming: {Completed, Failed, Cancelled},
	Completed: {},
	Failed:    {},
	Cancelled: {},
}

// CanTransition reports whether moving from 'from' to 'to' is allowed.
func CanTransition(from, to State) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllStates returns all defined states.
func AllStates() []State {
	return []State{Open, Streaming, Completed, Failed, Cancelled}
}

// TerminalStates returns all terminal states.
func TerminalStates() []State {
	return []State{Completed, Failed, Cancelled}
}

// Parse converts a string to a State. Parsing is case sensitive.
func Parse(s string) (State, bool) {
	state := State(s)
	for _, valid := range AllStates() {
		if state == valid {
			return state, true
		}
	}
	return "", false
}
