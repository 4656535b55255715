// Package eventbus implements the in-process publish/subscribe fabric
// coordinating the Orchestrator's specialist agents. It is not a message
// broker: there is no persistence beyond the bounded in-memory history.
package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the goal/plan/step/tool lifecycle vocabulary the
// Orchestrator and its agents communicate through.
type EventType string

const (
	EventPlanRequested EventType = "PLAN_REQUESTED"
	EventPlanReady     EventType = "PLAN_READY"
	EventPlanFailed    EventType = "PLAN_FAILED"
	EventPlanCompleted EventType = "PLAN_COMPLETED"

	EventStepRequested EventType = "STEP_REQUESTED"
	EventStepStarted   EventType = "STEP_STARTED"
	EventStepCompleted EventType = "STEP_COMPLETED"
	EventStepFailed    EventType = "STEP_FAILED"

	EventContextRequest  EventType = "CONTEXT_REQUEST"
	EventContextResponse EventType = "CONTEXT_RESPONSE"

	// EventGoalCancelled is published by the Orchestrator when a caller's
	// context is cancelled before a terminal PLAN_COMPLETED/PLAN_FAILED
	// arrives, distinct from a DefaultTimeout expiry.
	EventGoalCancelled EventType = "GOAL_CANCELLED"
)

// Event is an immutable, append-only record published to the bus.
type Event struct {
	ID            string         `json:"id"`
	Type          EventType      `json:"type"`
	Source        string         `json:"source"`
	Timestamp     time.Time      `json:"timestamp"`
	Data          any            `json:"data,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// NewEvent constructs an Event with a fresh ID and current timestamp.
func NewEvent(eventType EventType, source string, data any, correlationID string) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now(),
		Data:          data,
		CorrelationID: correlationID,
	}
}

// Handler processes one Event. A returned error is logged by the bus and
// does not prevent other handlers of the same event from running.
type Handler func(event Event) error
