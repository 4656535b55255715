package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/superagent-run/superagent/eventbus"
	"github.com/superagent-run/superagent/types"
)

// MemoryStore is the narrow surface the MemoryAgent needs from the
// Adaptive Memory subsystem: record a completed step as working memory,
// and answer a context request with relevant prior items.
type MemoryStore interface {
	Record(ctx context.Context, item types.MemoryItem) error
	Retrieve(ctx context.Context, query string, k int) ([]types.MemoryItem, error)
}

// MemoryAgent subscribes to STEP_COMPLETED (writing working memory) and
// CONTEXT_REQUEST (answering with CONTEXT_RESPONSE), tying Adaptive
// Memory into the Event Bus.
type MemoryAgent struct {
	bus    *eventbus.Bus
	store  MemoryStore
	logger *zap.Logger
}

// NewMemoryAgent registers the memory agent's subscriptions.
func NewMemoryAgent(bus *eventbus.Bus, store MemoryStore, logger *zap.Logger) *MemoryAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MemoryAgent{bus: bus, store: store, logger: logger.With(zap.String("component", "memory_agent"))}
	bus.Subscribe(eventbus.EventStepCompleted, m.handleStepCompleted)
	bus.Subscribe(eventbus.EventContextRequest, m.handleContextRequest)
	return m
}

func (m *MemoryAgent) handleStepCompleted(event eventbus.Event) error {
	data, ok := event.Data.(StepCompletedData)
	if !ok {
		return fmt.Errorf("memory_agent: unexpected event payload type %T", event.Data)
	}

	item := types.MemoryItem{
		ID:         event.ID,
		Content:    fmt.Sprintf("%v", data.Output),
		MemoryType: types.MemoryTypeWorking,
		Timestamp:  event.Timestamp,
		Metadata: map[string]any{
			"task_id": data.TaskID,
			"step_id": data.StepID,
		},
	}
	if err := m.store.Record(context.Background(), item); err != nil {
		m.logger.Error("failed to record step output", zap.Error(err))
		return err
	}
	return nil
}

// ContextRequestData is the payload carried by a CONTEXT_REQUEST event.
type ContextRequestData struct {
	Query string
	K     int
}

// ContextResponseData is the payload carried by a CONTEXT_RESPONSE event.
type ContextResponseData struct {
	Items []types.MemoryItem
}

func (m *MemoryAgent) handleContextRequest(event eventbus.Event) error {
	data, ok := event.Data.(ContextRequestData)
	if !ok {
		return fmt.Errorf("memory_agent: unexpected event payload type %T", event.Data)
	}
	k := data.K
	if k <= 0 {
		k = 5
	}
	items, err := m.store.Retrieve(context.Background(), data.Query, k)
	if err != nil {
		m.logger.Error("failed to retrieve context", zap.Error(err))
		return err
	}
	m.bus.Publish(eventbus.NewEvent(eventbus.EventContextResponse, "memory_agent", ContextResponseData{Items: items}, event.CorrelationID))
	return nil
}
