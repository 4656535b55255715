package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/superagent-run/superagent/types"
)

func TestCompress_ExtractsCapitalizedEntities(t *testing.T) {
	now := time.Now()
	items := []types.MemoryItem{
		{Content: "Alice talked to Bob about the Planner design.", Timestamp: now},
		{Content: "Bob agreed with Alice on the Executor contract.", Timestamp: now.Add(2 * time.Minute)},
	}

	result := Compress(items)

	assert.Contains(t, result.Entities, "Alice")
	assert.Contains(t, result.Entities, "Bob")
	assert.Contains(t, result.Entities, "Planner")
	assert.LessOrEqual(t, len(result.Entities), maxExtractedEntities)
}

func TestCompress_BuildsCoOccurrenceGraph(t *testing.T) {
	now := time.Now()
	items := []types.MemoryItem{
		{Content: "Alice and Bob reviewed the Orchestrator.", Timestamp: now},
	}

	result := Compress(items)

	assert.Contains(t, result.Relationships["Alice"], "Bob")
	assert.Contains(t, result.Relationships["Bob"], "Alice")
}

func TestCompress_ExtractsKeyDecisionsCappedAndTruncated(t *testing.T) {
	now := time.Now()
	var items []types.MemoryItem
	for i := 0; i < 15; i++ {
		items = append(items, types.MemoryItem{
			Content:   "We decided to rewrite the retry policy from scratch because it kept flaking in CI and nobody could explain why after three separate investigations",
			Timestamp: now,
		})
	}

	result := Compress(items)

	assert.Len(t, result.KeyDecisions, maxKeyDecisions)
	for _, d := range result.KeyDecisions {
		assert.LessOrEqual(t, len(d), maxDecisionLen)
	}
}

func TestCompress_IgnoresMessagesWithoutDecisionKeywords(t *testing.T) {
	items := []types.MemoryItem{
		{Content: "just chatting about the weather", Timestamp: time.Now()},
	}

	result := Compress(items)

	assert.Empty(t, result.KeyDecisions)
}

func TestCompress_SummaryIncludesSpanDescriptor(t *testing.T) {
	now := time.Now()
	items := []types.MemoryItem{
		{Content: "Start of the conversation.", Timestamp: now},
		{Content: "End of the conversation.", Timestamp: now.Add(10 * time.Minute)},
	}

	result := Compress(items)

	assert.Contains(t, result.Summary.Content, "2 messages over 10 minutes")
	assert.Equal(t, types.MemoryTypeLongTerm, result.Summary.MemoryType)
}

func TestCompress_RatioIsSummaryOverOriginalLength(t *testing.T) {
	items := []types.MemoryItem{
		{Content: "short", Timestamp: time.Now()},
	}

	result := Compress(items)

	expected := float64(len(result.Summary.Content)) / float64(len("short"))
	assert.InDelta(t, expected, result.CompressionRatio, 1e-9)
}

func TestCompress_EmptyInputProducesZeroRatio(t *testing.T) {
	result := Compress(nil)
	assert.Equal(t, 0.0, result.CompressionRatio)
}
