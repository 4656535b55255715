package executor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superagent-run/superagent/types"
)

// TestExecutor_TransactionalRollback: a failing second call must leave
// the first call's overwrite rolled back.
func TestExecutor_TransactionalRollback(t *testing.T) {
	workDir := t.TempDir()
	snapshotDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "a.txt"), []byte("one"), 0o644))

	registry := NewRegistry()
	require.NoError(t, registry.Register(WriteFileTool{}))
	require.NoError(t, registry.Register(FailingTool{ErrMessage: "boom"}))

	cm := NewCheckpointManager(workDir, snapshotDir)
	exec := New(registry, cm, DefaultConfig(), nil)

	t1Params, _ := json.Marshal(map[string]any{"path": filepath.Join(workDir, "a.txt"), "content": "two"})
	calls := []types.ToolInvocation{
		{ID: uuid.NewString(), ToolName: "write_file", Parameters: t1Params, Timestamp: time.Now()},
		{ID: uuid.NewString(), ToolName: "always_fail", Parameters: json.RawMessage(`{}`), Timestamp: time.Now()},
	}

	result := exec.Run(context.Background(), calls)

	assert.False(t, result.Success)

	data, err := os.ReadFile(filepath.Join(workDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
}

func TestExecutor_CommitOnAllSuccess(t *testing.T) {
	workDir := t.TempDir()
	snapshotDir := t.TempDir()

	registry := NewRegistry()
	require.NoError(t, registry.Register(WriteFileTool{}))

	cm := NewCheckpointManager(workDir, snapshotDir)
	exec := New(registry, cm, DefaultConfig(), nil)

	params, _ := json.Marshal(map[string]any{"path": filepath.Join(workDir, "b.txt"), "content": "hello"})
	calls := []types.ToolInvocation{
		{ID: uuid.NewString(), ToolName: "write_file", Parameters: params, Timestamp: time.Now()},
	}

	result := exec.Run(context.Background(), calls)

	require.True(t, result.Success)
	require.Len(t, result.Results, len(calls))
	for i, out := range result.Results {
		assert.Equal(t, calls[i].ID, out.CallID)
		assert.True(t, out.Success)
	}
}

func TestExecutor_ToolNotFound(t *testing.T) {
	registry := NewRegistry()
	cm := NewCheckpointManager(t.TempDir(), t.TempDir())
	exec := New(registry, cm, DefaultConfig(), nil)

	calls := []types.ToolInvocation{{ID: uuid.NewString(), ToolName: "missing", Parameters: json.RawMessage(`{}`)}}
	result := exec.Run(context.Background(), calls)

	assert.False(t, result.Success)
	require.Error(t, result.Error)
}

func TestExecutor_ParameterValidationRejectsMissingRequired(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(WriteFileTool{}))
	cm := NewCheckpointManager(t.TempDir(), t.TempDir())
	exec := New(registry, cm, DefaultConfig(), nil)

	calls := []types.ToolInvocation{{ID: uuid.NewString(), ToolName: "write_file", Parameters: json.RawMessage(`{"path": "x"}`)}}
	result := exec.Run(context.Background(), calls)

	assert.False(t, result.Success)
	assert.Equal(t, types.ErrToolValidationFailed, types.GetErrorCode(result.Error))
}

// TestExecutor_BudgetExceededRollsBack: a call blocked by the cost
// controller fails the transaction, and the earlier call's mutation is
// rolled back like any other mid-sequence failure.
func TestExecutor_BudgetExceededRollsBack(t *testing.T) {
	workDir := t.TempDir()
	snapshotDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "a.txt"), []byte("one"), 0o644))

	registry := NewRegistry()
	require.NoError(t, registry.Register(WriteFileTool{}))

	cm := NewCheckpointManager(workDir, snapshotDir)
	exec := New(registry, cm, DefaultConfig(), nil)

	costs := NewCostController(nil)
	require.NoError(t, costs.AddBudget(Budget{
		Name:    "one-call",
		Scope:   BudgetScopeGlobal,
		Limit:   1,
		Enabled: true,
	}))
	exec.SetCostController(costs)

	t1Params, _ := json.Marshal(map[string]any{"path": filepath.Join(workDir, "a.txt"), "content": "two"})
	t2Params, _ := json.Marshal(map[string]any{"path": filepath.Join(workDir, "b.txt"), "content": "never"})
	calls := []types.ToolInvocation{
		{ID: uuid.NewString(), ToolName: "write_file", Parameters: t1Params, Timestamp: time.Now()},
		{ID: uuid.NewString(), ToolName: "write_file", Parameters: t2Params, Timestamp: time.Now()},
	}

	result := exec.Run(context.Background(), calls)
	assert.False(t, result.Success)

	data, err := os.ReadFile(filepath.Join(workDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(data), "first call's overwrite must roll back")
	_, err = os.Stat(filepath.Join(workDir, "b.txt"))
	assert.True(t, os.IsNotExist(err), "blocked second call must not run")
}
