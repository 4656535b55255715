package ux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_AllowsDocumentedEdges(t *testing.T) {
	assert.True(t, CanTransition(StateIdle, StateParsingInput))
	assert.True(t, CanTransition(StateConfirming, StateExecuting))
	assert.True(t, CanTransition(StateExecuting, StateCompleted))
	assert.True(t, CanTransition(StateCompleted, StateIdle))
	assert.True(t, CanTransition(StateError, StateIdle))
}

func TestCanTransition_RejectsSkippedStates(t *testing.T) {
	assert.False(t, CanTransition(StateIdle, StatePlanning))
	assert.False(t, CanTransition(StateParsingInput, StateExecuting))
	assert.False(t, CanTransition(StateCompleted, StateExecuting))
}

func TestStateMachine_TransitionFiresCallback(t *testing.T) {
	sm := NewStateMachine()
	var seenFrom, seenTo State
	sm.OnEnter(StateParsingInput, func(from, to State, uc *UXContext) {
		seenFrom, seenTo = from, to
	})

	require.NoError(t, sm.Transition(StateParsingInput, &UXContext{}))
	assert.Equal(t, StateIdle, seenFrom)
	assert.Equal(t, StateParsingInput, seenTo)
	assert.Equal(t, StateParsingInput, sm.State())
}

func TestStateMachine_IllegalTransitionReturnsError(t *testing.T) {
	sm := NewStateMachine()
	err := sm.Transition(StateExecuting, &UXContext{})
	require.Error(t, err)
	assert.Equal(t, StateIdle, sm.State())
}
