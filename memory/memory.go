package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/superagent-run/superagent/internal/cache"
	"github.com/superagent-run/superagent/types"
)

// AdaptiveMemory is the three-tier memory subsystem. It
// satisfies orchestrator.MemoryStore's Record/Retrieve surface so it can
// be wired directly into an orchestrator.MemoryAgent.
type AdaptiveMemory struct {
	config     Config
	working    *workingTier
	episodic   *episodicTier
	procedural *proceduralTier
	logger     *zap.Logger
	cache      *cache.Manager

	// compressMu serializes compression runs against each other, and
	// Record holds it around each add, so concurrent adds queue behind an
	// in-flight compression.
	compressMu sync.Mutex
}

// New constructs an AdaptiveMemory. embed vectorizes episodic documents
// and retrieval queries; see WrapEmbeddingProvider to adapt an
// llm/embedding.Provider.
func New(config Config, embed Embedder, logger *zap.Logger) (*AdaptiveMemory, error) {
	if config.WorkingCapacity <= 0 {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ep, err := newEpisodicTier(config.EpisodicCapacity, config.StoragePath, embed)
	if err != nil {
		return nil, err
	}

	return &AdaptiveMemory{
		config:     config,
		working:    newWorkingTier(config.WorkingCapacity),
		episodic:   ep,
		procedural: newProceduralTier(),
		logger:     logger.With(zap.String("component", "adaptive_memory")),
	}, nil
}

// SetCache attaches a Redis-backed read-through cache for
// RetrieveRelevantContext, sparing a repeat dense+sparse fusion for an
// identical query seen within the cache's TTL. Unset (nil) memories
// retrieve uncached, as before.
func (m *AdaptiveMemory) SetCache(c *cache.Manager) {
	m.cache = c
}

// Record adds item to working memory, triggering Compress once the
// pending buffer reaches CompressionThreshold. Satisfies
// orchestrator.MemoryStore.
func (m *AdaptiveMemory) Record(ctx context.Context, item types.MemoryItem) error {
	if item.MemoryType == "" {
		item.MemoryType = types.MemoryTypeWorking
	}
	m.compressMu.Lock()
	pendingLen := m.working.add(item)
	m.compressMu.Unlock()
	if pendingLen >= m.config.CompressionThreshold {
		if err := m.runCompression(ctx); err != nil {
			m.logger.Error("compression failed", zap.Error(err))
			return err
		}
	}
	return nil
}

// runCompression drains the pending buffer and stores the resulting
// summary in the episodic tier.
func (m *AdaptiveMemory) runCompression(ctx context.Context) error {
	m.compressMu.Lock()
	defer m.compressMu.Unlock()

	pending := m.working.drainPending()
	if len(pending) == 0 {
		return nil
	}
	result := Compress(pending)
	m.logger.Debug("compressed working memory",
		zap.Int("source_count", len(pending)),
		zap.Float64("compression_ratio", result.CompressionRatio),
	)
	return m.episodic.add(ctx, result.Summary)
}

// Retrieve answers a context request with the fused top-k items.
// Satisfies orchestrator.MemoryStore.
func (m *AdaptiveMemory) Retrieve(ctx context.Context, query string, k int) ([]types.MemoryItem, error) {
	return m.RetrieveRelevantContext(ctx, query, k)
}

// RecordProcedure write-through stores learned parameters for a named
// skill/pattern in the procedural tier. No eviction.
func (m *AdaptiveMemory) RecordProcedure(name string, params map[string]any) {
	m.procedural.set(name, params)
}

// Procedure looks up a previously recorded skill/pattern.
func (m *AdaptiveMemory) Procedure(name string) (map[string]any, bool) {
	return m.procedural.get(name)
}

// WorkingSize, PendingSize, EpisodicSize and ProceduralSize expose tier
// occupancy for the Context Health Monitor and for tests asserting the
// post-compression invariants.
func (m *AdaptiveMemory) WorkingSize() int    { return m.working.size() }
func (m *AdaptiveMemory) PendingSize() int    { return m.working.pendingLen() }
func (m *AdaptiveMemory) EpisodicSize() int   { return m.episodic.size() }
func (m *AdaptiveMemory) ProceduralSize() int { return m.procedural.size() }
