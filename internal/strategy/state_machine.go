package strategy

import "sync"

// StateMachine tracks one executor run's lifecycle. FAILED is absorbing and
// reachable from every non-terminal state.
type StateMachine struct {
	mu    sync.Mutex
	State State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{State: StateInitiated}
}

func (s *StateMachine) Apply(event Event) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = nextState(s.State, event)
	return s.State
}

func (s *StateMachine) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State
}

func nextState(current State, event Event) State {
	if current == StateSuccess || current == StateFailed {
		return current
	}
	if event == EventFailed {
		return StateFailed
	}
	switch current {
	case StateInitiated:
		if event == EventTimeSynced {
			return StateTimeSynced
		}
	case StateTimeSynced:
		if event == EventSized {
			return StateSized
		}
	case StateSized:
		if event == EventOpenScheduled {
			return StateOpenScheduled
		}
	case StateOpenScheduled:
		if event == EventOpened {
			return StateOpened
		}
	case StateOpened:
		if event == EventCloseScheduled {
			return StateCloseScheduled
		}
	case StateCloseScheduled:
		if event == EventClosed {
			return StateClosed
		}
	case StateClosed:
		if event == EventSucceeded {
			return StateSuccess
		}
	}
	return current
}
