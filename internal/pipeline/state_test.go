package pipeline

import "testing"

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateRunning, "running"},
		{StatePaused, "paused"},
		{StateStopping, "stopping"},
		{StateCompleted, "completed"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestStateMachineTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		ok   bool
	}{
		{"idle to running", StateIdle, StateRunning, true},
		{"idle to paused", StateIdle, StatePaused, false},
		{"idle to completed", StateIdle, StateCompleted, false},
		{"running to paused", StateRunning, StatePaused, true},
		{"running to stopping", StateRunning, StateStopping, true},
		{"running to completed", StateRunning, StateCompleted, true},
		{"running to failed", StateRunning, StateFailed, true},
		{"running to idle", StateRunning, StateIdle, false},
		{"paused to running", StatePaused, StateRunning, true},
		{"paused to stopping", StatePaused, StateStopping, true},
		{"paused to failed", StatePaused, StateFailed, true},
		{"paused to idle", StatePaused, StateIdle, false},
		{"stopping to idle", StateStopping, StateIdle, true},
		{"stopping to running", StateStopping, StateRunning, false},
		{"completed to idle", StateCompleted, StateIdle, true},
		{"failed to idle", StateFailed, StateIdle, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newStateMachine()
			m.state = tt.from
			if got := m.transition(tt.to); got != tt.ok {
				t.Errorf("transition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
			}
			if tt.ok && m.current() != tt.to {
				t.Errorf("state after transition = %s, want %s", m.current(), tt.to)
			}
			if !tt.ok && m.current() != tt.from {
				t.Errorf("failed transition changed state to %s", m.current())
			}
		})
	}
}
