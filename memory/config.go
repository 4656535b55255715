package memory

// Config tunes the three memory tiers and the retrieval fusion weight;
// it mirrors the memory block of the configuration file.
type Config struct {
	// WorkingCapacity bounds the working tier's FIFO ring (default 10).
	WorkingCapacity int
	// EpisodicCapacity bounds the episodic tier; oldest summaries are
	// evicted once exceeded (default 1000).
	EpisodicCapacity int
	// CompressionThreshold is the pending-buffer size that triggers
	// Compress (default 50).
	CompressionThreshold int
	// TemporalWeight scales the recency term in RetrieveRelevantContext's
	// fusion score (default 0.3).
	TemporalWeight float64
	// EmbeddingModel names the embedding model used to vectorize episodic
	// documents and retrieval queries.
	EmbeddingModel string
	// VectorStoreBackend names the vector index backend in use.
	VectorStoreBackend string
	// StoragePath is the on-disk path for the episodic tier's persistent
	// vector index. Empty means in-memory only (suitable for tests and
	// ephemeral sessions).
	StoragePath string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		WorkingCapacity:      10,
		EpisodicCapacity:     1000,
		CompressionThreshold: 50,
		TemporalWeight:       0.3,
		EmbeddingModel:       "default",
		VectorStoreBackend:   "chromem",
	}
}
