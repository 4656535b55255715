package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superagent-run/superagent/eventbus"
	"github.com/superagent-run/superagent/types"
)

type fakeMemoryStore struct {
	recorded []types.MemoryItem
	toReturn []types.MemoryItem
}

func (f *fakeMemoryStore) Record(ctx context.Context, item types.MemoryItem) error {
	f.recorded = append(f.recorded, item)
	return nil
}

func (f *fakeMemoryStore) Retrieve(ctx context.Context, query string, k int) ([]types.MemoryItem, error) {
	return f.toReturn, nil
}

func TestMemoryAgent_RecordsStepCompletedEvents(t *testing.T) {
	bus := newTestBus()
	store := &fakeMemoryStore{}
	NewMemoryAgent(bus, store, nil)

	bus.Publish(eventbus.NewEvent(eventbus.EventStepCompleted, "test", StepCompletedData{
		TaskID: "t1", StepID: "s1", Output: "result",
	}, "corr-1"))

	require.Len(t, store.recorded, 1)
	assert.Equal(t, "t1", store.recorded[0].Metadata["task_id"])
}

func TestMemoryAgent_AnswersContextRequest(t *testing.T) {
	bus := newTestBus()
	store := &fakeMemoryStore{toReturn: []types.MemoryItem{{ID: "m1", Content: "prior fact"}}}
	NewMemoryAgent(bus, store, nil)

	var response ContextResponseData
	bus.Subscribe(eventbus.EventContextResponse, func(event eventbus.Event) error {
		if data, ok := event.Data.(ContextResponseData); ok {
			response = data
		}
		return nil
	})

	bus.Publish(eventbus.NewEvent(eventbus.EventContextRequest, "test", ContextRequestData{Query: "fact", K: 3}, "corr-2"))

	require.Len(t, response.Items, 1)
	assert.Equal(t, "prior fact", response.Items[0].Content)
}
