package executor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCostController_CalculateCostUsesToolModel(t *testing.T) {
	c := NewCostController(nil)
	c.SetToolCost(ToolCost{ToolName: "write_file", BaseCost: 2, CostPerKB: 1, Unit: CostUnitCredits})

	args := json.RawMessage(make([]byte, 2048))
	assert.InDelta(t, 4.0, c.CalculateCost("write_file", args), 1e-9)
	// Unconfigured tools fall back to the one-credit default.
	assert.InDelta(t, 1.0, c.CalculateCost("unknown_tool", nil), 1e-9)
}

func TestCostController_BudgetBlocksWhenExhausted(t *testing.T) {
	c := NewCostController(nil)
	require.NoError(t, c.AddBudget(Budget{
		ID:      "b1",
		Name:    "tiny",
		Scope:   BudgetScopeGlobal,
		Limit:   2,
		Unit:    CostUnitCredits,
		Enabled: true,
	}))

	check := c.Check("write_file", 1)
	assert.True(t, check.Allowed)
	c.Record("call-1", "write_file", 1)

	check = c.Check("write_file", 1)
	assert.True(t, check.Allowed)
	c.Record("call-2", "write_file", 1)

	check = c.Check("write_file", 1)
	assert.False(t, check.Allowed)
	require.NotNil(t, check.Alert)
	assert.Equal(t, CostAlertLevelCritical, check.Alert.Level)
	assert.InDelta(t, 2.0, c.Usage("b1"), 1e-9)
}

func TestCostController_ToolScopedBudgetIgnoresOtherTools(t *testing.T) {
	c := NewCostController(nil)
	require.NoError(t, c.AddBudget(Budget{
		ID:      "b1",
		Name:    "write-only",
		Scope:   BudgetScopeTool,
		ScopeID: "write_file",
		Limit:   1,
		Enabled: true,
	}))

	c.Record("call-1", "write_file", 1)
	assert.False(t, c.Check("write_file", 1).Allowed)
	assert.True(t, c.Check("read_file", 1).Allowed, "other tools are not bound by a tool-scoped budget")
}

func TestCostController_ThresholdAlertsFireOnce(t *testing.T) {
	c := NewCostController(nil)
	require.NoError(t, c.AddBudget(Budget{
		ID:              "b1",
		Name:            "alerting",
		Scope:           BudgetScopeGlobal,
		Limit:           10,
		AlertThresholds: []float64{50, 80},
		Enabled:         true,
	}))

	check := c.Check("t", 5)
	require.NotNil(t, check.Alert, "crossing 50% must alert")
	assert.Equal(t, CostAlertLevelInfo, check.Alert.Level)
	c.Record("call-1", "t", 5)

	check = c.Check("t", 1)
	assert.Nil(t, check.Alert, "50% threshold already alerted")
	c.Record("call-2", "t", 1)

	check = c.Check("t", 3)
	require.NotNil(t, check.Alert, "crossing 80% must alert")
	assert.Equal(t, CostAlertLevelWarning, check.Alert.Level)
}

func TestCostController_AddBudgetValidation(t *testing.T) {
	c := NewCostController(nil)
	assert.Error(t, c.AddBudget(Budget{Name: "no-limit", Scope: BudgetScopeGlobal}))
	assert.Error(t, c.AddBudget(Budget{Name: "no-scope-id", Scope: BudgetScopeTool, Limit: 1}))
}

func TestCostController_ReportAggregatesByTool(t *testing.T) {
	c := NewCostController(nil)
	c.Record("call-1", "write_file", 2)
	c.Record("call-2", "write_file", 2)
	c.Record("call-3", "shell", 6)

	report := c.Report()
	assert.InDelta(t, 10.0, report.TotalCost, 1e-9)
	assert.Equal(t, int64(3), report.TotalCalls)
	assert.InDelta(t, 10.0/3, report.AverageCost, 1e-9)
	assert.InDelta(t, 4.0, report.ByTool["write_file"], 1e-9)
	assert.InDelta(t, 6.0, report.ByTool["shell"], 1e-9)
}
