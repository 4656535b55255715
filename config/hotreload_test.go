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

func TestHotReload_ApplyConfigDetectsChanges(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())

	var mu sync.Mutex
	var seen []ConfigChange
	m.OnChange(func(c ConfigChange) {
		mu.Lock()
		seen = append(seen, c)
		mu.Unlock()
	})

	next := DefaultConfig()
	next.Log.Level = "debug"
	next.Executor.MaxParallelSteps = 8
	require.NoError(t, m.ApplyConfig(next, "api"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	paths := []string{seen[0].Path, seen[1].Path}
	assert.Contains(t, paths, "Log.Level")
	assert.Contains(t, paths, "Executor.MaxParallelSteps")
	for _, c := range seen {
		assert.True(t, c.Applied)
		assert.Equal(t, "api", c.Source)
	}
	assert.Equal(t, "debug", m.GetConfig().Log.Level)
}

func TestHotReload_RestartOnlyFieldNotApplied(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())

	next := DefaultConfig()
	next.Database.Driver = "mysql"
	require.NoError(t, m.ApplyConfig(next, "file"))

	log := m.GetChangeLog(0)
	require.Len(t, log, 1)
	assert.Equal(t, "Database.Driver", log[0].Path)
	assert.False(t, log[0].Applied)
	// The live config keeps the old value.
	assert.Equal(t, "postgres", m.GetConfig().Database.Driver)
}

func TestHotReload_ValidatorRejectsBadValue(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())

	next := DefaultConfig()
	next.UX.Temperature = 5.0
	require.NoError(t, m.ApplyConfig(next, "file"))

	log := m.GetChangeLog(0)
	require.Len(t, log, 1)
	assert.False(t, log[0].Applied)
	assert.NotEmpty(t, log[0].Error)
}

func TestHotReload_ReloadCallbackFiresOnApply(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())

	fired := false
	m.OnReload(func(old, new *Config) {
		fired = true
		assert.Equal(t, "info", old.Log.Level)
		assert.Equal(t, "warn", new.Log.Level)
	})

	next := DefaultConfig()
	next.Log.Level = "warn"
	require.NoError(t, m.ApplyConfig(next, "file"))
	assert.True(t, fired)
}

func TestHotReload_UpdateField(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())

	require.NoError(t, m.UpdateField("Log.Level", "debug"))
	assert.Equal(t, "debug", m.GetConfig().Log.Level)

	assert.Error(t, m.UpdateField("Database.Driver", "mysql"), "restart-only field")
	assert.Error(t, m.UpdateField("Security.MaxFileSizeMB", 5), "not whitelisted")
	assert.Error(t, m.UpdateField("UX.Temperature", 9.0), "validator rejects")

	require.NoError(t, m.UpdateField("UX.Temperature", 0.1))
	assert.InDelta(t, 0.1, m.GetConfig().UX.Temperature, 1e-9)
}

func TestHotReload_GetChangeLogLimit(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())
	require.NoError(t, m.UpdateField("Log.Level", "debug"))
	require.NoError(t, m.UpdateField("Log.Level", "warn"))
	require.NoError(t, m.UpdateField("Log.Level", "error"))

	assert.Len(t, m.GetChangeLog(2), 2)
	assert.Len(t, m.GetChangeLog(0), 3)
	last := m.GetChangeLog(1)
	require.Len(t, last, 1)
	assert.Equal(t, "error", last[0].NewValue)
}

func TestHotReload_FileReloadEndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	m := NewHotReloadManager(MustLoad(path), WithConfigFile(path))

	reloaded := make(chan struct{}, 1)
	m.OnReload(func(_, _ *Config) {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
	assert.Equal(t, "debug", m.GetConfig().Log.Level)
}

func TestHotReload_IsHotReloadable(t *testing.T) {
	assert.True(t, IsHotReloadable("Log.Level"))
	assert.False(t, IsHotReloadable("Database.Driver"))
	assert.False(t, IsHotReloadable("Nope.Nope"))
	assert.NotEmpty(t, GetHotReloadableFields())
}

func TestHotReload_SanitizedConfigMasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-very-secret"
	cfg.Database.Password = "hunter2"
	m := NewHotReloadManager(cfg)

	data := m.SanitizedConfig()
	llm := data["LLM"].(map[string]interface{})
	assert.Equal(t, "[REDACTED]", llm["APIKey"])
	db := data["Database"].(map[string]interface{})
	assert.Equal(t, "[REDACTED]", db["Password"])
	// Empty secrets stay empty rather than implying one exists.
	redis := data["Redis"].(map[string]interface{})
	assert.Equal(t, "", redis["Password"])
}
