package scenario

import "fmt"

// StepState is a step's position in its lifecycle:
//
//	pending -> waiting -> satisfied -> executed
//	                   \-> timed_out -> failed
//
// Steps without a precondition go from pending straight to executed or
// failed. Steps after a failure stay skipped.
type StepState string

const (
	StatePending   StepState = "pending"
	StateWaiting   StepState = "waiting"
	StateSatisfied StepState = "satisfied"
	StateExecuted  StepState = "executed"
	StateTimedOut  StepState = "timed_out"
	StateFailed    StepState = "failed"
	StateSkipped   StepState = "skipped"
)

var transitions = map[StepState][]StepState{
	StatePending:   {StateWaiting, StateExecuted, StateFailed, StateSkipped},
	StateWaiting:   {StateSatisfied, StateTimedOut, StateFailed},
	StateSatisfied: {StateExecuted, StateFailed},
	StateTimedOut:  {StateFailed},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to StepState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s StepState) Terminal() bool {
	return len(transitions[s]) == 0
}

// stepTracker records the transitions of one step.
type stepTracker struct {
	result *StepResult
}

func (t stepTracker) move(to StepState) {
	from := t.result.State
	if !CanTransition(from, to) {
		panic(fmt.Sprintf("scenario: illegal step transition %s -> %s", from, to))
	}
	t.result.State = to
	t.result.History = append(t.result.History, to)
}
