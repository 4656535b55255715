// Package types provides unified type definitions for the SuperAgent runtime.
package types

import "time"

// MemoryCategory defines the unified memory category across the framework.
type MemoryCategory string

const (
	// MemoryWorking represents short-term working memory for current task context.
	// Storage: In-memory or Redis with TTL.
	MemoryWorking MemoryCategory = "working"

	// MemoryEpisodic represents event-based experiential memories.
	// Storage: Vector store for semantic search.
	MemoryEpisodic MemoryCategory = "episodic"

	// MemorySemantic represents factual knowledge and learned information.
	// Storage: PostgreSQL/Qdrant for long-term persistence.
	MemorySemantic MemoryCategory = "semantic"

	// MemoryProcedural represents how-to knowledge and learned procedures.
	// Storage: Structured storage for procedure definitions.
	MemoryProcedural MemoryCategory = "procedural"
)

// MemoryRecord represents a unified memory entry structure.
type MemoryRecord struct {
	ID          string            `json:"id"`
	AgentID     string            `json:"agent_id"`
	Category    MemoryCategory    `json:"category"`
	Content     string            `json:"content"`
	Embedding   []float32         `json:"embedding,omitempty"`
	Importance  float64           `json:"importance,omitempty"`
	AccessCount int               `json:"access_count,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	VectorID    string            `json:"vector_id,omitempty"`
	Relations   []string          `json:"relations,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	LastAccess  time.Time         `json:"last_access,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
}

// MemoryQuery represents a query for memory retrieval.
type MemoryQuery struct {
	AgentID    string         `json:"agent_id"`
	Category   MemoryCategory `json:"category,omitempty"`
	Query      string         `json:"query,omitempty"`
	TopK       int            `json:"top_k,omitempty"`
	MinScore   float64        `json:"min_score,omitempty"`
	TimeRange  *TimeRange     `json:"time_range,omitempty"`
}

// TimeRange represents a time range for filtering.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MemoryStats provides statistics about memory usage.
type MemoryStats struct {
	TotalRecords   int            `json:"total_records"`
	ByCategory     map[string]int `json:"by_category"`
	OldestRecord   time.Time      `json:"oldest_record,omitempty"`
	NewestRecord   time.Time      `json:"newest_record,omitempty"`
	TotalSizeBytes int64          `json:"total_size_bytes,omitempty"`
}

// MemoryType is the Adaptive Memory tier vocabulary used by MemoryItem.
// It is distinct from MemoryCategory: SHORT_TERM and WORKING both back
// onto the working tier, while LONG_TERM covers compressed summaries
// stored in the episodic tier alongside raw episodic observations.
type MemoryType string

const (
	MemoryTypeShortTerm MemoryType = "SHORT_TERM"
	MemoryTypeWorking   MemoryType = "WORKING"
	MemoryTypeLongTerm  MemoryType = "LONG_TERM"
	MemoryTypeEpisodic  MemoryType = "EPISODIC"
	MemoryTypeSemantic  MemoryType = "SEMANTIC"
)

// MemoryItem is a single Adaptive Memory entry.
//
// Invariant: AccessCount is monotonic non-decreasing; when Embedding is
// present its length equals the active embedding dimension.
type MemoryItem struct {
	ID           string         `json:"id"`
	Content      string         `json:"content"`
	MemoryType   MemoryType     `json:"memory_type"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Embedding    []float32      `json:"embedding,omitempty"`
	Importance   float64        `json:"importance"`
	AccessCount  int            `json:"access_count"`
	LastAccessed *time.Time     `json:"last_accessed,omitempty"`
}

// Touch records an access, bumping AccessCount monotonically.
func (m *MemoryItem) Touch(now time.Time) {
	m.AccessCount++
	m.LastAccessed = &now
}
