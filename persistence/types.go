package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/superagent-run/superagent/types"
)

// SessionSnapshot is the persisted session document: one file (or
// row, or document) per session, enough to reconstruct a conversation and
// resume it.
type SessionSnapshot struct {
	SessionID string          `json:"session_id" bson:"session_id"`
	Timestamp time.Time       `json:"timestamp" bson:"timestamp"`
	Model     string          `json:"model" bson:"model"`
	Messages  []types.Message `json:"messages" bson:"messages"`
	Profile   string          `json:"profile,omitempty" bson:"profile,omitempty"`
}

// PersistedCheckpoint is the persisted checkpoint document:
// `{checkpoint_id, session_id, created_at, description, state}` where
// state is an opaque serialized session object. It is distinct from
// executor.Checkpoint, which is the transactional executor's in-memory,
// filesystem-snapshot restore point. This one is the
// UX-session-level checkpoint named in the "session.checkpointed" NDJSON
// event and restored by rollback_to_checkpoint.
type PersistedCheckpoint struct {
	CheckpointID string          `json:"checkpoint_id" bson:"checkpoint_id"`
	SessionID    string          `json:"session_id" bson:"session_id"`
	CreatedAt    time.Time       `json:"created_at" bson:"created_at"`
	Description  string          `json:"description,omitempty" bson:"description,omitempty"`
	State        json.RawMessage `json:"state" bson:"state"`
}

// ErrNotFound is returned by Load* when no record exists for the given id.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e *ErrNotFound) Error() string {
	return "persistence: " + e.Kind + " not found: " + e.ID
}

// Store persists session snapshots and checkpoints, and lists a session's
// checkpoint history so a caller can offer rollback to an arbitrary
// earlier point. Implementations must be safe for concurrent use — the
// same session can be checkpointed from one turn while another goroutine
// loads an earlier snapshot for inspection.
type Store interface {
	SaveSession(ctx context.Context, snap SessionSnapshot) error
	LoadSession(ctx context.Context, sessionID string) (SessionSnapshot, error)

	SaveCheckpoint(ctx context.Context, cp PersistedCheckpoint) error
	LoadCheckpoint(ctx context.Context, checkpointID string) (PersistedCheckpoint, error)
	ListCheckpoints(ctx context.Context, sessionID string) ([]PersistedCheckpoint, error)

	Close() error
}
