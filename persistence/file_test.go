package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superagent-run/superagent/types"
)

func TestFileStore_SessionRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	snap := SessionSnapshot{
		SessionID: "sess-1",
		Timestamp: time.Now().Truncate(time.Second),
		Model:     "gpt-4",
		Messages:  []types.Message{types.NewUserMessage("hello")},
	}
	require.NoError(t, store.SaveSession(context.Background(), snap))

	loaded, err := store.LoadSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, snap.SessionID, loaded.SessionID)
	assert.Equal(t, snap.Model, loaded.Model)
	assert.Len(t, loaded.Messages, 1)
	assert.Equal(t, "hello", loaded.Messages[0].Content)
}

func TestFileStore_LoadSession_NotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.LoadSession(context.Background(), "missing")
	require.Error(t, err)
	var nf *ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "session", nf.Kind)
}

func TestFileStore_CheckpointListBySession(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	now := time.Now()
	for i, sess := range []string{"a", "a", "b"} {
		cp := PersistedCheckpoint{
			CheckpointID: "cp-" + string(rune('0'+i)),
			SessionID:    sess,
			CreatedAt:    now.Add(time.Duration(i) * time.Minute),
			State:        json.RawMessage(`{"n":` + string(rune('0'+i)) + `}`),
		}
		require.NoError(t, store.SaveCheckpoint(context.Background(), cp))
	}

	got, err := store.ListCheckpoints(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].CreatedAt.Before(got[1].CreatedAt))
}
