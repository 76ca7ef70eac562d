package inference

import (
	"fmt"
	"sync"
)

// State is the lifecycle of one page's generation.
type State int

const (
	StatePending State = iota
	StateAttempting
	StateRetrying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAttempting:
		return "attempting"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// allowed lists the legal next states for each state.
var allowed = map[State][]State{
	StatePending:    {StateAttempting, StateFailed},
	StateAttempting: {StateSucceeded, StateRetrying, StateFailed},
	StateRetrying:   {StateAttempting, StateFailed},
}

// tracker records the states one page passes through.
type tracker struct {
	mu       sync.Mutex
	state    State
	attempts int
	history  []State
}

func newTracker() *tracker {
	return &tracker{state: StatePending, history: []State{StatePending}}
}

// to moves to next, returning an error for an illegal transition.
func (t *tracker) to(next State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range allowed[t.state] {
		if s == next {
			t.state = next
			t.history = append(t.history, next)
			if next == StateAttempting {
				t.attempts++
			}
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s", t.state, next)
}

func (t *tracker) snapshot() (State, int, []State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.attempts, append([]State(nil), t.history...)
}
