package ndjson

import (
	"context"
	"fmt"
	"sync"

	"github.com/superagent-run/superagent/eventbus"
	"github.com/superagent-run/superagent/internal/channel"
	"github.com/superagent-run/superagent/orchestrator"
	"github.com/superagent-run/superagent/types"
)

// emitJob is one queued NDJSON line awaiting its turn on stdout.
type emitJob struct {
	envelope Envelope
	fields   any
}

// Bridge subscribes to an eventbus.Bus and translates the internal
// PLAN_*/STEP_* vocabulary into NDJSON lines on a Writer. It
// holds no opinion on event content beyond what it can read off
// eventbus.Event.Data; everything else (session.*, diff.*) is emitted
// directly by the UX engine, which has the intent/confidence/diff detail
// a step-level bus event does not carry.
//
// Handlers enqueue onto an auto-tuning channel.TunableChannel rather than
// calling w.Emit inline: eventbus.Publish waits for every handler before
// returning, so a blocking stdout write here would stall the whole bus
// until the NDJSON consumer caught up. A background drain goroutine owns
// the actual writes.
type Bridge struct {
	w         *Writer
	sessionID string
	requestID func() string

	mu    sync.Mutex
	plans map[string]*types.Plan // task_id -> last known plan, for step type/tool lookups

	queue *channel.TunableChannel[emitJob]
}

// NewBridge attaches a Bridge to bus, emitting through w. requestID is
// called once per emitted line to stamp request_id; pass a fixed-string
// closure for single-request callers.
func NewBridge(bus *eventbus.Bus, w *Writer, sessionID string, requestID func() string) *Bridge {
	br := &Bridge{
		w:         w,
		sessionID: sessionID,
		requestID: requestID,
		plans:     make(map[string]*types.Plan),
		queue:     channel.NewTunableChannel[emitJob](channel.DefaultTunableConfig()),
	}
	bus.Subscribe(eventbus.EventPlanReady, br.onPlanReady)
	bus.Subscribe(eventbus.EventPlanFailed, br.onPlanFailed)
	bus.Subscribe(eventbus.EventStepStarted, br.onStepStarted)
	bus.Subscribe(eventbus.EventStepCompleted, br.onStepCompleted)
	bus.Subscribe(eventbus.EventStepFailed, br.onStepFailed)
	bus.Subscribe(eventbus.EventGoalCancelled, br.onGoalCancelled)
	go br.drain()
	return br
}

// drain is the sole goroutine that writes to w, so emitted lines stay in
// enqueue order despite handlers running concurrently on the bus.
func (b *Bridge) drain() {
	ctx := context.Background()
	for {
		job, err := b.queue.Receive(ctx)
		if err != nil {
			return
		}
		if err := b.w.Emit(job.envelope, job.fields); err != nil {
			return
		}
	}
}

func (b *Bridge) enqueue(envelope Envelope, fields any) error {
	return b.queue.Send(context.Background(), emitJob{envelope: envelope, fields: fields})
}

func (b *Bridge) envelope(evt EventType, correlationID string) Envelope {
	return Envelope{Event: evt, SessionID: b.sessionID, RequestID: b.requestID(), CorrelationID: correlationID}
}

func (b *Bridge) onPlanReady(event eventbus.Event) error {
	data, ok := event.Data.(orchestrator.PlanReadyData)
	if !ok || data.Plan == nil {
		return nil
	}
	b.mu.Lock()
	b.plans[data.Plan.TaskID] = data.Plan
	b.mu.Unlock()

	names := make([]string, len(data.Plan.Steps))
	for i, s := range data.Plan.Steps {
		names[i] = s.Description
	}
	return b.enqueue(b.envelope(EventPlanCreated, event.CorrelationID), PlanCreatedFields{
		Steps: names,
	})
}

func (b *Bridge) onGoalCancelled(event eventbus.Event) error {
	data, _ := event.Data.(orchestrator.GoalCancelledData)
	return b.enqueue(b.envelope(EventErrorUser, event.CorrelationID), ErrorFields{
		ErrorType:    string(types.ErrCancelledByUser),
		ErrorMessage: data.Error,
		Recoverable:  false,
	})
}

func (b *Bridge) onPlanFailed(event eventbus.Event) error {
	data, ok := event.Data.(orchestrator.PlanFailedData)
	msg := "plan failed"
	if ok {
		msg = data.Error
	}
	return b.enqueue(b.envelope(EventErrorSystem, event.CorrelationID), ErrorFields{
		ErrorType:    string(types.ErrAllProvidersFailed),
		ErrorMessage: msg,
		Recoverable:  false,
	})
}

func (b *Bridge) stepFor(taskID, stepID string) *types.Step {
	b.mu.Lock()
	plan, ok := b.plans[taskID]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	for i := range plan.Steps {
		if plan.Steps[i].ID == stepID {
			return &plan.Steps[i]
		}
	}
	return nil
}

func (b *Bridge) onStepStarted(event eventbus.Event) error {
	data, ok := event.Data.(orchestrator.StepStartedData)
	if !ok {
		return nil
	}
	step := b.stepFor(data.TaskID, data.StepID)
	if step != nil && step.Type == types.StepAct {
		return b.enqueue(b.envelope(EventToolRequested, event.CorrelationID), ToolFields{
			ToolName: step.ToolName,
			ToolArgs: step.ToolArgs,
		})
	}
	name := data.StepID
	if step != nil {
		name = step.Description
	}
	return b.enqueue(b.envelope(EventPlanStepStarted, event.CorrelationID), PlanStepFields{StepName: name})
}

func (b *Bridge) onStepCompleted(event eventbus.Event) error {
	data, ok := event.Data.(orchestrator.StepCompletedData)
	if !ok {
		return nil
	}
	step := b.stepFor(data.TaskID, data.StepID)
	if step != nil && step.Type == types.StepAct {
		return b.enqueue(b.envelope(EventToolResult, event.CorrelationID), ToolFields{
			ToolName: step.ToolName,
			ToolArgs: step.ToolArgs,
			Result:   data.Output,
		})
	}
	name := data.StepID
	if step != nil {
		name = step.Description
	}
	return b.enqueue(b.envelope(EventPlanStepFinished, event.CorrelationID), PlanStepFields{StepName: name, Result: data.Output})
}

func (b *Bridge) onStepFailed(event eventbus.Event) error {
	data, ok := event.Data.(orchestrator.StepFailedData)
	if !ok {
		return nil
	}
	step := b.stepFor(data.TaskID, data.StepID)
	evtType := EventErrorSystem
	toolName := ""
	if step != nil {
		toolName = step.ToolName
		if step.Type == types.StepAct {
			evtType = EventErrorTool
		}
	}
	return b.enqueue(b.envelope(evtType, event.CorrelationID), ErrorFields{
		ErrorType:    string(types.ErrToolExecutionFailed),
		ErrorMessage: fmt.Sprintf("%s: %s", toolName, data.Error),
		Recoverable:  true,
	})
}
