package executor

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CostUnit is the unit a tool's cost is measured in.
type CostUnit string

const (
	CostUnitCredits CostUnit = "credits"
	CostUnitDollars CostUnit = "dollars"
	CostUnitTokens  CostUnit = "tokens"
)

// CostAlertLevel grades a budget-threshold crossing.
type CostAlertLevel string

const (
	CostAlertLevelInfo     CostAlertLevel = "info"
	CostAlertLevelWarning  CostAlertLevel = "warning"
	CostAlertLevelCritical CostAlertLevel = "critical"
)

// ToolCost is the cost model for one tool: a base cost per call plus a
// per-kilobyte charge on the call's parameter payload.
type ToolCost struct {
	ToolName  string   `json:"tool_name"`
	BaseCost  float64  `json:"base_cost"`
	CostPerKB float64  `json:"cost_per_kb"`
	Unit      CostUnit `json:"unit"`
}

// BudgetScope selects what a Budget constrains.
type BudgetScope string

const (
	BudgetScopeGlobal BudgetScope = "global"
	BudgetScopeTool   BudgetScope = "tool"
)

// Budget caps spend for a scope. AlertThresholds are percentages of the
// limit (e.g. 50, 80) that raise an alert on crossing; the limit itself
// always raises a critical alert and blocks the call.
type Budget struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Scope           BudgetScope `json:"scope"`
	ScopeID         string      `json:"scope_id,omitempty"` // tool name for BudgetScopeTool
	Limit           float64     `json:"limit"`
	Unit            CostUnit    `json:"unit"`
	AlertThresholds []float64   `json:"alert_thresholds,omitempty"`
	Enabled         bool        `json:"enabled"`
}

// CostRecord is one priced tool invocation.
type CostRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	CallID    string    `json:"call_id"`
	ToolName  string    `json:"tool_name"`
	Cost      float64   `json:"cost"`
	Unit      CostUnit  `json:"unit"`
}

// CostAlert reports a budget threshold crossing.
type CostAlert struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      CostAlertLevel `json:"level"`
	BudgetID   string         `json:"budget_id"`
	Message    string         `json:"message"`
	Current    float64        `json:"current"`
	Limit      float64        `json:"limit"`
	Percentage float64        `json:"percentage"`
}

// CostCheckResult is the outcome of pricing and budget-checking one call.
type CostCheckResult struct {
	Allowed      bool       `json:"allowed"`
	Cost         float64    `json:"cost"`
	CurrentUsage float64    `json:"current_usage"`
	Remaining    float64    `json:"remaining"`
	Alert        *CostAlert `json:"alert,omitempty"`
	Reason       string     `json:"reason,omitempty"`
}

// CostReport aggregates recorded spend.
type CostReport struct {
	TotalCost   float64            `json:"total_cost"`
	TotalCalls  int64              `json:"total_calls"`
	AverageCost float64            `json:"average_cost"`
	ByTool      map[string]float64 `json:"by_tool,omitempty"`
}

// CostController prices tool calls and enforces budgets. Attached to an
// Executor via SetCostController; unset Executors price nothing, the same
// opt-in shape as SetRateLimiter and SetAuditLogger.
type CostController struct {
	mu          sync.Mutex
	toolCosts   map[string]ToolCost
	defaultCost ToolCost
	budgets     map[string]*Budget
	usage       map[string]float64 // budget id -> spent
	crossed     map[string]float64 // budget id -> highest threshold alerted
	records     []CostRecord
	logger      *zap.Logger
}

// NewCostController creates a controller with a one-credit-per-call
// default cost model and no budgets.
func NewCostController(logger *zap.Logger) *CostController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CostController{
		toolCosts:   make(map[string]ToolCost),
		defaultCost: ToolCost{BaseCost: 1, Unit: CostUnitCredits},
		budgets:     make(map[string]*Budget),
		usage:       make(map[string]float64),
		crossed:     make(map[string]float64),
		logger:      logger.With(zap.String("component", "cost_controller")),
	}
}

// SetToolCost installs or replaces a tool's cost model.
func (c *CostController) SetToolCost(tc ToolCost) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolCosts[tc.ToolName] = tc
}

// AddBudget installs a budget. A tool-scoped budget needs a ScopeID.
func (c *CostController) AddBudget(b Budget) error {
	if b.Limit <= 0 {
		return fmt.Errorf("budget %q: limit must be positive", b.Name)
	}
	if b.Scope == BudgetScopeTool && b.ScopeID == "" {
		return fmt.Errorf("budget %q: tool scope requires a scope_id", b.Name)
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.budgets[b.ID] = &b
	return nil
}

// CalculateCost prices a call from the tool's cost model.
func (c *CostController) CalculateCost(toolName string, args json.RawMessage) float64 {
	c.mu.Lock()
	tc, ok := c.toolCosts[toolName]
	if !ok {
		tc = c.defaultCost
	}
	c.mu.Unlock()
	return tc.BaseCost + tc.CostPerKB*float64(len(args))/1024
}

// Check verifies cost fits every enabled budget matching toolName. The
// first exceeded budget blocks the call; threshold crossings below the
// limit produce an alert but allow it.
func (c *CostController) Check(toolName string, cost float64) CostCheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := CostCheckResult{Allowed: true, Cost: cost}
	for _, b := range c.budgets {
		if !b.Enabled || !c.budgetMatches(b, toolName) {
			continue
		}
		spent := c.usage[b.ID]
		result.CurrentUsage = spent
		result.Remaining = b.Limit - spent

		if spent+cost > b.Limit {
			alert := c.alertLocked(b, spent+cost, CostAlertLevelCritical,
				fmt.Sprintf("budget %q exhausted: %.2f + %.2f exceeds limit %.2f", b.Name, spent, cost, b.Limit))
			return CostCheckResult{
				Cost:         cost,
				CurrentUsage: spent,
				Remaining:    b.Limit - spent,
				Alert:        alert,
				Reason:       alert.Message,
			}
		}
		for _, pct := range b.AlertThresholds {
			threshold := b.Limit * pct / 100
			if spent+cost >= threshold && c.crossed[b.ID] < pct {
				c.crossed[b.ID] = pct
				level := CostAlertLevelInfo
				if pct >= 80 {
					level = CostAlertLevelWarning
				}
				result.Alert = c.alertLocked(b, spent+cost, level,
					fmt.Sprintf("budget %q at %.0f%% of limit %.2f", b.Name, pct, b.Limit))
			}
		}
	}
	return result
}

// Record books a priced call against every matching budget.
func (c *CostController) Record(callID, toolName string, cost float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = append(c.records, CostRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		CallID:    callID,
		ToolName:  toolName,
		Cost:      cost,
		Unit:      c.unitForLocked(toolName),
	})
	for _, b := range c.budgets {
		if b.Enabled && c.budgetMatches(b, toolName) {
			c.usage[b.ID] += cost
		}
	}
}

// Usage returns the spend booked against a budget.
func (c *CostController) Usage(budgetID string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage[budgetID]
}

// Report aggregates all recorded spend.
func (c *CostController) Report() CostReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	report := CostReport{ByTool: make(map[string]float64)}
	for _, r := range c.records {
		report.TotalCost += r.Cost
		report.TotalCalls++
		report.ByTool[r.ToolName] += r.Cost
	}
	if report.TotalCalls > 0 {
		report.AverageCost = report.TotalCost / float64(report.TotalCalls)
	}
	return report
}

func (c *CostController) budgetMatches(b *Budget, toolName string) bool {
	switch b.Scope {
	case BudgetScopeGlobal:
		return true
	case BudgetScopeTool:
		return b.ScopeID == toolName
	default:
		return false
	}
}

func (c *CostController) unitForLocked(toolName string) CostUnit {
	if tc, ok := c.toolCosts[toolName]; ok {
		return tc.Unit
	}
	return c.defaultCost.Unit
}

func (c *CostController) alertLocked(b *Budget, current float64, level CostAlertLevel, msg string) *CostAlert {
	alert := &CostAlert{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Level:      level,
		BudgetID:   b.ID,
		Message:    msg,
		Current:    current,
		Limit:      b.Limit,
		Percentage: current / b.Limit * 100,
	}
	c.logger.Warn("cost alert",
		zap.String("budget", b.Name),
		zap.String("level", string(level)),
		zap.Float64("current", current),
		zap.Float64("limit", b.Limit),
	)
	return alert
}
