package pipeline

// State identifies the pipeline lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopping
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// stateMachine enforces the legal lifecycle transitions. It is not
// safe for concurrent use; the Controller serializes access.
type stateMachine struct {
	state       State
	transitions map[State][]State
}

func newStateMachine() *stateMachine {
	return &stateMachine{
		state: StateIdle,
		transitions: map[State][]State{
			StateIdle:      {StateRunning},
			StateRunning:   {StatePaused, StateStopping, StateCompleted, StateFailed},
			StatePaused:    {StateRunning, StateStopping, StateCompleted, StateFailed},
			StateStopping:  {StateIdle},
			StateCompleted: {StateIdle},
			StateFailed:    {StateIdle},
		},
	}
}

func (m *stateMachine) current() State { return m.state }

// canTransition reports whether moving to the target state is legal
// from the current state.
func (m *stateMachine) canTransition(to State) bool {
	for _, allowed := range m.transitions[m.state] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transition moves to the target state if legal and reports whether it
// happened.
func (m *stateMachine) transition(to State) bool {
	if !m.canTransition(to) {
		return false
	}
	m.state = to
	return true
}
