package ux

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superagent-run/superagent/types"
)

type fakeRetriever struct {
	items []types.MemoryItem
}

func (f fakeRetriever) RetrieveRelevantContext(_ context.Context, _ string, k int) ([]types.MemoryItem, error) {
	if k < len(f.items) {
		return f.items[:k], nil
	}
	return f.items, nil
}

func TestContextFusion_MergesHistoryFilesToolsAndMemory(t *testing.T) {
	retriever := fakeRetriever{items: []types.MemoryItem{
		{ID: "m1", Content: "prior decision", Timestamp: time.Now()},
	}}
	fusion := NewContextFusion(retriever)

	history := []types.Message{
		types.NewUserMessage("first"),
		types.NewAssistantMessage("second"),
	}
	uc, err := fusion.Fuse(context.Background(), "sess-1", "goal text", history, []string{"a.go"}, []string{"write_file"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "sess-1", uc.SessionID)
	assert.Len(t, uc.ConversationHistory, 2)

	var sawMemory, sawFile, sawTool bool
	for _, n := range uc.Nodes {
		switch n.Type {
		case types.ContextNodeMemory:
			sawMemory = true
		case types.ContextNodeFile:
			sawFile = true
		case types.ContextNodeTool:
			sawTool = true
		}
	}
	assert.True(t, sawMemory)
	assert.True(t, sawFile)
	assert.True(t, sawTool)
}

func TestContextFusion_TruncatesHistoryToLast10(t *testing.T) {
	fusion := NewContextFusion(nil)
	var history []types.Message
	for i := 0; i < 15; i++ {
		history = append(history, types.NewUserMessage("msg"))
	}

	uc, err := fusion.Fuse(context.Background(), "sess-2", "", history, nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, uc.ConversationHistory, maxFusedHistory)
}

func TestContextFusion_GetCachedContext_ReturnsLastFused(t *testing.T) {
	fusion := NewContextFusion(nil)
	assert.Nil(t, fusion.GetCachedContext("missing"))

	uc, err := fusion.Fuse(context.Background(), "sess-3", "", nil, nil, nil, nil)
	require.NoError(t, err)

	cached := fusion.GetCachedContext("sess-3")
	require.NotNil(t, cached)
	assert.Equal(t, uc.SessionID, cached.SessionID)
}

func TestDecay_MostRecentTurnIsUndamped(t *testing.T) {
	assert.InDelta(t, 1.0, decay(0, historyHalfLifeTurns), 1e-9)
	assert.Less(t, decay(historyHalfLifeTurns, historyHalfLifeTurns), 1.0)
	assert.InDelta(t, 0.5, decay(historyHalfLifeTurns, historyHalfLifeTurns), 1e-9)
}
