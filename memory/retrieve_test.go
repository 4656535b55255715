package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superagent-run/superagent/types"
)

func TestRetrieveRelevantContext_DefaultsKWhenNonPositive(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.Record(ctx, types.MemoryItem{Content: "alpha beta gamma", Timestamp: time.Now()}))

	items, err := m.RetrieveRelevantContext(ctx, "alpha", 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(items), 5)
}

func TestRetrieveRelevantContext_RanksSparseOverlapHigher(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.Record(ctx, types.MemoryItem{Content: "the planner schedules steps in parallel groups", Timestamp: time.Now()}))
	require.NoError(t, m.Record(ctx, types.MemoryItem{Content: "unrelated content about desserts", Timestamp: time.Now()}))

	items, err := m.RetrieveRelevantContext(ctx, "planner parallel groups", 2)
	require.NoError(t, err)
	require.NotEmpty(t, items)
	assert.Contains(t, items[0].Content, "planner")
}

func TestSparseSearch_NoOverlapReturnsEmpty(t *testing.T) {
	items := []types.MemoryItem{{Content: "completely unrelated text", Timestamp: time.Now()}}
	hits := sparseSearch("query terms absent", items, 5)
	assert.Empty(t, hits)
}

func TestSparseSearch_RespectsTopN(t *testing.T) {
	now := time.Now()
	var items []types.MemoryItem
	for i := 0; i < 10; i++ {
		items = append(items, types.MemoryItem{Content: "match term here", Timestamp: now})
	}
	hits := sparseSearch("match", items, 3)
	assert.Len(t, hits, 3)
}
