package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointSigner_RoundTrip(t *testing.T) {
	signer := NewCheckpointSigner("test-secret", time.Hour)
	state := []byte(`{"foo":"bar"}`)

	token, err := signer.Sign("cp-1", "sess-1", state)
	require.NoError(t, err)

	cpID, sessID, err := signer.Verify(token, state)
	require.NoError(t, err)
	assert.Equal(t, "cp-1", cpID)
	assert.Equal(t, "sess-1", sessID)
}

func TestCheckpointSigner_DetectsTamperedState(t *testing.T) {
	signer := NewCheckpointSigner("test-secret", time.Hour)
	token, err := signer.Sign("cp-1", "sess-1", []byte(`{"foo":"bar"}`))
	require.NoError(t, err)

	_, _, err = signer.Verify(token, []byte(`{"foo":"tampered"}`))
	require.ErrorIs(t, err, ErrTamperedCheckpoint)
}

func TestCheckpointSigner_RejectsWrongSecret(t *testing.T) {
	signer := NewCheckpointSigner("secret-a", time.Hour)
	token, err := signer.Sign("cp-1", "sess-1", []byte(`{}`))
	require.NoError(t, err)

	other := NewCheckpointSigner("secret-b", time.Hour)
	_, _, err = other.Verify(token, []byte(`{}`))
	require.Error(t, err)
}

func TestCheckpointSigner_NeverExpiresByDefault(t *testing.T) {
	signer := NewCheckpointSigner("test-secret", 0)
	token, err := signer.Sign("cp-1", "sess-1", []byte(`{}`))
	require.NoError(t, err)

	_, _, err = signer.Verify(token, []byte(`{}`))
	require.NoError(t, err)
}
