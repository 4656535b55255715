package memory

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superagent-run/superagent/types"
)

const fakeEmbeddingDim = 16

// fakeEmbedder deterministically hashes text into a fixed-dimension
// vector so dense search has something stable to rank against, without
// depending on a network embedding call in tests.
type fakeEmbedder struct{}

func (fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, fakeEmbeddingDim)
	for i := range vec {
		vec[i] = float32(sum[i%len(sum)]) / 255
	}
	return vec, nil
}

func newTestMemory(t *testing.T) *AdaptiveMemory {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CompressionThreshold = 3
	cfg.WorkingCapacity = 5
	m, err := New(cfg, fakeEmbedder{}, nil)
	require.NoError(t, err)
	return m
}

func TestAdaptiveMemory_RecordWithinCapacity(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := m.Record(ctx, types.MemoryItem{ID: "a", Content: "hello world", Timestamp: time.Now()})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, m.WorkingSize())
	assert.Equal(t, 2, m.PendingSize())
	assert.Equal(t, 0, m.EpisodicSize())
}

func TestAdaptiveMemory_WorkingTierEvictsOldest(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, m.Record(ctx, types.MemoryItem{Content: "item", Timestamp: time.Now()}))
	}

	assert.LessOrEqual(t, m.WorkingSize(), 5)
}

func TestAdaptiveMemory_CompressionTriggersOnThreshold(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Record(ctx, types.MemoryItem{
			Content:   "We decided to use Go for the Backend service.",
			Timestamp: time.Now(),
		}))
	}

	// After compression the pending buffer is empty and
	// episodic.size <= episodic_capacity.
	assert.Equal(t, 0, m.PendingSize())
	assert.Equal(t, 1, m.EpisodicSize())
	assert.LessOrEqual(t, m.EpisodicSize(), m.config.EpisodicCapacity)
}

func TestAdaptiveMemory_ProcedureWriteThrough(t *testing.T) {
	m := newTestMemory(t)

	_, ok := m.Procedure("refactor-loop")
	assert.False(t, ok)

	m.RecordProcedure("refactor-loop", map[string]any{"max_iterations": 3})
	got, ok := m.Procedure("refactor-loop")
	require.True(t, ok)
	assert.Equal(t, 3, got["max_iterations"])

	// write-through: re-recording replaces, does not duplicate or evict.
	m.RecordProcedure("refactor-loop", map[string]any{"max_iterations": 5})
	got, ok = m.Procedure("refactor-loop")
	require.True(t, ok)
	assert.Equal(t, 5, got["max_iterations"])
	assert.Equal(t, 1, m.ProceduralSize())
}

func TestAdaptiveMemory_RetrieveSatisfiesMemoryStoreInterface(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.Record(ctx, types.MemoryItem{Content: "discussing the planner module", Timestamp: time.Now()}))

	items, err := m.Retrieve(ctx, "planner module", 5)
	require.NoError(t, err)
	assert.NotNil(t, items)
}
