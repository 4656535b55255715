// Package memory implements the Adaptive Memory subsystem: a bounded
// working-memory ring, a persistent vector-indexed episodic tier, and a
// write-through procedural tier, tied together by a periodic compression
// pipeline and a reciprocal-rank-fusion retrieval path. It satisfies
// orchestrator.MemoryStore so an AdaptiveMemory can be wired directly into
// a MemoryAgent.
package memory
