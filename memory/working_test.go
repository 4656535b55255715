package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/superagent-run/superagent/types"
)

func TestWorkingTier_EvictsOldestOnOverflow(t *testing.T) {
	w := newWorkingTier(2)
	w.add(types.MemoryItem{ID: "1", Timestamp: time.Now()})
	w.add(types.MemoryItem{ID: "2", Timestamp: time.Now()})
	w.add(types.MemoryItem{ID: "3", Timestamp: time.Now()})

	snap := w.snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, "2", snap[0].ID)
	assert.Equal(t, "3", snap[1].ID)
}

func TestWorkingTier_DrainPendingClearsBufferIndependentlyOfRing(t *testing.T) {
	w := newWorkingTier(10)
	w.add(types.MemoryItem{ID: "1"})
	w.add(types.MemoryItem{ID: "2"})

	drained := w.drainPending()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, w.pendingLen())
	assert.Equal(t, 2, w.size()) // ring buffer unaffected by draining pending
}
