package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/superagent-run/superagent/eventbus"
	"github.com/superagent-run/superagent/internal/ctxkeys"
	llmcontext "github.com/superagent-run/superagent/llm/context"
	"github.com/superagent-run/superagent/types"
)

var tracer = otel.Tracer("superagent/orchestrator")

// maxHistoryTokens bounds the conversation history fuseContext folds into
// a goal's UnifiedContext; the estimate tokenizer errs toward over- rather
// than under-counting, so the framing budget stays conservative.
const maxHistoryTokens = 8000

var historyManager = llmcontext.NewDefaultContextManager(llmcontext.NewEstimateTokenizer(), zap.NewNop())

// GoalStatus is the terminal outcome of ExecuteGoal.
type GoalStatus string

const (
	GoalCompleted GoalStatus = "completed"
	GoalFailed    GoalStatus = "failed"
	GoalTimeout   GoalStatus = "timeout"
	GoalCancelled GoalStatus = "cancelled"
)

// GoalCancelledData is the payload carried by a GOAL_CANCELLED event.
type GoalCancelledData struct {
	TaskID string
	Error  string
}

// GoalResult is returned by ExecuteGoal.
type GoalResult struct {
	Status GoalStatus
	Plan   *types.Plan
	Error  string
}

// Config tunes the Orchestrator's end-to-end execution of one goal.
type Config struct {
	// DefaultTimeout bounds how long ExecuteGoal waits for a terminal
	// PLAN_COMPLETED/PLAN_FAILED event before returning GoalTimeout.
	DefaultTimeout time.Duration
	// CancellationGrace bounds how long cancellation is given to
	// propagate to in-flight provider/tool calls.
	CancellationGrace time.Duration
}

// DefaultConfig returns the documented defaults (60s goal timeout,
// 2s cancellation grace).
func DefaultConfig() Config {
	return Config{DefaultTimeout: 60 * time.Second, CancellationGrace: 2 * time.Second}
}

// Orchestrator drives one goal through the Event Bus: it fuses context,
// publishes PLAN_REQUESTED, and awaits the terminal event carrying the
// same correlation id.
type Orchestrator struct {
	bus    *eventbus.Bus
	config Config
	logger *zap.Logger
}

// New constructs an Orchestrator over bus. PlannerAgent, ExecutorAgent,
// MemoryAgent, and MonitorAgent must already be subscribed to bus before
// ExecuteGoal is called.
func New(bus *eventbus.Bus, config Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultTimeout <= 0 {
		config = DefaultConfig()
	}
	return &Orchestrator{bus: bus, config: config, logger: logger.With(zap.String("component", "orchestrator"))}
}

// ExecuteGoal fuses the supplied history/files into a UnifiedContext,
// submits a Task derived from goal, and blocks until a terminal
// PLAN_COMPLETED or PLAN_FAILED event arrives for this goal's
// correlation id, or DefaultTimeout elapses.
func (o *Orchestrator) ExecuteGoal(ctx context.Context, goal string, sessionID string, history []types.Message, files []string) GoalResult {
	correlationID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "orchestrator.execute_goal",
		trace.WithAttributes(
			attribute.String("correlation_id", correlationID),
			attribute.String("session_id", sessionID),
		))
	defer span.End()

	ctx = ctxkeys.WithRunID(ctx, correlationID)
	ctx = ctxkeys.WithTraceID(ctx, span.SpanContext().TraceID().String())

	result := o.executeGoal(ctx, goal, correlationID, sessionID, history, files)

	span.SetAttributes(attribute.String("status", string(result.Status)))
	if result.Status == GoalCompleted {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, result.Error)
	}
	return result
}

func (o *Orchestrator) executeGoal(ctx context.Context, goal string, correlationID string, sessionID string, history []types.Message, files []string) GoalResult {
	unified := fuseContext(sessionID, history, files)

	task := types.Task{
		ID:          uuid.NewString(),
		Description: goal,
		MaxSteps:    20,
		TimeoutS:    int(o.config.DefaultTimeout.Seconds()),
	}

	done := make(chan GoalResult, 1)
	var once sync.Once

	completedHandler := func(event eventbus.Event) error {
		if event.CorrelationID != correlationID {
			return nil
		}
		if data, ok := event.Data.(PlanReadyData); ok {
			once.Do(func() { done <- GoalResult{Status: GoalCompleted, Plan: data.Plan} })
		}
		return nil
	}
	failedHandler := func(event eventbus.Event) error {
		if event.CorrelationID != correlationID {
			return nil
		}
		if data, ok := event.Data.(PlanFailedData); ok {
			once.Do(func() { done <- GoalResult{Status: GoalFailed, Error: data.Error} })
		}
		return nil
	}

	o.bus.Subscribe(eventbus.EventPlanCompleted, completedHandler)
	o.bus.Subscribe(eventbus.EventPlanFailed, failedHandler)
	defer o.bus.Unsubscribe(eventbus.EventPlanCompleted, completedHandler)
	defer o.bus.Unsubscribe(eventbus.EventPlanFailed, failedHandler)

	runCtx, cancel := context.WithTimeout(ctx, o.config.DefaultTimeout)
	defer cancel()

	go o.bus.Publish(eventbus.NewEvent(eventbus.EventPlanRequested, "orchestrator", PlanRequestedData{
		Task: task, Context: unified,
	}, correlationID))

	select {
	case result := <-done:
		return result
	case <-runCtx.Done():
		o.propagateCancellation()
		if errors.Is(ctx.Err(), context.Canceled) {
			o.bus.Publish(eventbus.NewEvent(eventbus.EventGoalCancelled, "orchestrator", GoalCancelledData{
				TaskID: task.ID, Error: "cancelled by caller",
			}, correlationID))
			return GoalResult{Status: GoalCancelled, Error: "goal execution cancelled by caller"}
		}
		return GoalResult{Status: GoalTimeout, Error: "goal execution timed out"}
	}
}

// propagateCancellation gives in-flight provider/tool calls up to
// CancellationGrace to observe the cancelled context before returning.
func (o *Orchestrator) propagateCancellation() {
	if o.config.CancellationGrace <= 0 {
		return
	}
	time.Sleep(o.config.CancellationGrace)
}

// pruneHistory trims history under maxHistoryTokens, dropping the oldest
// non-system turns first so the plan request keeps the recent exchange.
func pruneHistory(history []types.Message) []types.Message {
	if len(history) == 0 {
		return history
	}
	msgs := make([]llmcontext.Message, len(history))
	for i, m := range history {
		msgs[i] = llmcontext.Message{
			Role:    llmcontext.Role(m.Role),
			Content: m.Content,
			Name:    m.Name,
		}
	}
	trimmed, err := historyManager.TrimMessages(msgs, maxHistoryTokens)
	if err != nil {
		return history
	}
	out := make([]types.Message, len(trimmed))
	for i, m := range trimmed {
		out[i] = types.Message{
			Role:    types.Role(m.Role),
			Content: m.Content,
			Name:    m.Name,
		}
	}
	return out
}

// fuseContext builds a UnifiedContext from conversation history and
// active files. Memory nodes are added separately by the
// MemoryAgent in response to CONTEXT_REQUEST.
func fuseContext(sessionID string, history []types.Message, files []string) *types.UnifiedContext {
	history = pruneHistory(history)

	uc := &types.UnifiedContext{
		SessionID:           sessionID,
		ConversationHistory: history,
		ActiveFiles:         files,
		CreatedAt:           time.Now(),
	}
	for i, msg := range history {
		uc.Nodes = append(uc.Nodes, types.ContextNode{
			ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(sessionID+msg.Content)).String(),
			Type:      types.ContextNodeConversation,
			Content:   msg.Content,
			Timestamp: uc.CreatedAt,
			Relationships: func() []string {
				if i == 0 {
					return nil
				}
				return []string{history[i-1].Content}
			}(),
		})
	}
	for _, f := range files {
		uc.Nodes = append(uc.Nodes, types.ContextNode{
			ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(sessionID+f)).String(),
			Type:      types.ContextNodeFile,
			Content:   f,
			Timestamp: uc.CreatedAt,
		})
	}
	return uc
}
