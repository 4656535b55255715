package ux

import (
	"sync"

	"github.com/superagent-run/superagent/types"
)

// State is one node of the UX turn lifecycle.
type State string

const (
	StateIdle            State = "IDLE"
	StateParsingInput     State = "PARSING_INPUT"
	StateResolvingIntent  State = "RESOLVING_INTENT"
	StatePlanning         State = "PLANNING"
	StatePreviewing       State = "PREVIEWING"
	StateConfirming       State = "CONFIRMING"
	StateExecuting        State = "EXECUTING"
	StateCompleted        State = "COMPLETED"
	StateError            State = "ERROR"
)

// validTransitions enumerates the legal edges of the turn lifecycle.
// ERROR and COMPLETED both fold back to IDLE so the state machine is
// reusable across turns within one session.
var validTransitions = map[State][]State{
	StateIdle:            {StateParsingInput},
	StateParsingInput:    {StateResolvingIntent, StateError},
	StateResolvingIntent: {StatePlanning, StateError},
	StatePlanning:        {StatePreviewing, StateError},
	StatePreviewing:      {StateConfirming, StateError},
	StateConfirming:      {StateExecuting, StateError},
	StateExecuting:       {StateCompleted, StateError},
	StateCompleted:       {StateIdle},
	StateError:           {StateIdle},
}

// CanTransition reports whether from->to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Callback observes a state transition after it has taken effect.
type Callback func(from, to State, uc *UXContext)

// StateMachine is the turn lifecycle of one session. Engine keeps one per
// session id and reuses it for that session's turns; it does not
// serialize concurrent turns of the same session.
type StateMachine struct {
	mu        sync.Mutex
	state     State
	callbacks map[State][]Callback
}

// NewStateMachine starts in IDLE.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateIdle, callbacks: make(map[State][]Callback)}
}

// State returns the current state.
func (sm *StateMachine) State() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// OnEnter registers a callback fired every time the machine enters state.
func (sm *StateMachine) OnEnter(state State, cb Callback) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.callbacks[state] = append(sm.callbacks[state], cb)
}

// Transition moves the machine to "to", firing any callbacks registered
// for that state. Returns ErrInvalidTransition if from->to is not a legal
// edge.
func (sm *StateMachine) Transition(to State, uc *UXContext) error {
	sm.mu.Lock()
	from := sm.state
	if !CanTransition(from, to) {
		sm.mu.Unlock()
		return types.NewError(types.ErrInvalidTransition, "ux: illegal transition "+string(from)+" -> "+string(to))
	}
	sm.state = to
	cbs := append([]Callback(nil), sm.callbacks[to]...)
	sm.mu.Unlock()

	for _, cb := range cbs {
		cb(from, to, uc)
	}
	return nil
}
