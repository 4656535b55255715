package memory

import (
	"sync"

	"github.com/superagent-run/superagent/types"
)

// workingTier is a bounded FIFO ring of recent memory items, plus a
// pending-compression buffer that accumulates every added item until
// Compress drains it.
type workingTier struct {
	mu       sync.Mutex
	capacity int
	items    []types.MemoryItem
	pending  []types.MemoryItem
}

func newWorkingTier(capacity int) *workingTier {
	return &workingTier{capacity: capacity}
}

// add appends item to both the ring buffer (evicting the oldest entry on
// overflow) and the pending buffer, returning the pending buffer's new
// length so the caller can decide whether to trigger compression.
func (w *workingTier) add(item types.MemoryItem) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.items = append(w.items, item)
	if len(w.items) > w.capacity {
		w.items = w.items[len(w.items)-w.capacity:]
	}
	w.pending = append(w.pending, item)
	return len(w.pending)
}

// snapshot returns a copy of the current ring contents for sparse search.
func (w *workingTier) snapshot() []types.MemoryItem {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]types.MemoryItem, len(w.items))
	copy(out, w.items)
	return out
}

// drainPending removes and returns the full pending buffer. Callers hold
// this under their own compression lock so concurrent adds queue behind
// it.
func (w *workingTier) drainPending() []types.MemoryItem {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := w.pending
	w.pending = nil
	return out
}

func (w *workingTier) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

func (w *workingTier) pendingLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
