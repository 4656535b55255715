package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileWatcher_RequiresPaths(t *testing.T) {
	_, err := NewFileWatcher(nil)
	assert.Error(t, err)
}

func TestFileOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", FileOpCreate.String())
	assert.Equal(t, "WRITE", FileOpWrite.String())
	assert.Equal(t, "REMOVE", FileOpRemove.String())
	assert.Equal(t, "RENAME", FileOpRename.String())
	assert.Equal(t, "CHMOD", FileOpChmod.String())
	assert.Equal(t, "UNKNOWN", FileOp(99).String())
}

func TestFileWatcher_DetectsWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	w, err := NewFileWatcher([]string{path}, WithDebounceDelay(50*time.Millisecond))
	require.NoError(t, err)

	var mu sync.Mutex
	var events []FileEvent
	done := make(chan struct{}, 1)
	w.OnChange(func(ev FileEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()
	assert.True(t, w.IsRunning())

	// Give the watcher a beat to arm before mutating the file.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("no event observed for file write")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	abs, _ := filepath.Abs(path)
	assert.Equal(t, abs, events[0].Path)
}

func TestFileWatcher_DebounceCoalesces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))

	w, err := NewFileWatcher([]string{path}, WithDebounceDelay(200*time.Millisecond))
	require.NoError(t, err)

	var mu sync.Mutex
	count := 0
	w.OnChange(func(FileEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, count, 1)
	assert.LessOrEqual(t, count, 2, "burst of writes should coalesce")
}

func TestFileWatcher_StartTwiceFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))

	w, err := NewFileWatcher([]string{path})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()
	assert.Error(t, w.Start(ctx))
}

func TestFileWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))

	w, err := NewFileWatcher([]string{path})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
}
