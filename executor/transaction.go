package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/superagent-run/superagent/types"
)

var tracer = otel.Tracer("superagent/executor")

// IsolationLevel is advisory. The executor records it on each Transaction;
// snapshotting and locking are the same at every level.
type IsolationLevel string

const (
	ReadUncommitted IsolationLevel = "READ_UNCOMMITTED"
	ReadCommitted   IsolationLevel = "READ_COMMITTED"
	RepeatableRead  IsolationLevel = "REPEATABLE_READ"
	Serializable    IsolationLevel = "SERIALIZABLE"
)

// Transaction tracks the checkpoints and terminal state of one run of the
// Transactional Tool Executor. Invariant: exactly one of
// Committed/RolledBack is true once the transaction ends.
type Transaction struct {
	TransactionID  string
	IsolationLevel IsolationLevel
	Checkpoints    []*Checkpoint
	Committed      bool
	RolledBack     bool
	StartTime      time.Time
}

// TransactionResult is the outcome of running one tool-call sequence.
type TransactionResult struct {
	Success         bool
	Results         []types.ToolOutput
	Error           error
	TransactionID   string
	ExecutionTimeMs int64
}

// Config tunes executor behavior; it mirrors the executor block of the
// configuration file.
type Config struct {
	DefaultTimeoutS     int
	EnableSnapshots     bool
	MaxParallelSteps    int
	IsolationLevel      IsolationLevel
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeoutS:  30,
		EnableSnapshots:  true,
		MaxParallelSteps: 5,
		IsolationLevel:   Serializable,
	}
}

// Executor runs tool-call sequences with two-phase commit semantics.
type Executor struct {
	registry   *Registry
	checkpoint *CheckpointManager
	config     Config
	logger     *zap.Logger
	limiter    *RateLimiter
	audit      AuditLogger
	costs      *CostController
}

// New creates an Executor over registry, persisting checkpoints via cm.
func New(registry *Registry, cm *CheckpointManager, config Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		registry:   registry,
		checkpoint: cm,
		config:     config,
		logger:     logger.With(zap.String("component", "tool_executor")),
	}
}

// SetRateLimiter attaches a per-tool call-rate limiter. Unset (nil)
// Executors apply no limit, the same
// opt-in shape as SetAuditLogger.
func (e *Executor) SetRateLimiter(l *RateLimiter) {
	e.limiter = l
}

// SetAuditLogger attaches the audit trail sink every tool invocation is
// recorded to. Unset (nil) Executors log nothing.
func (e *Executor) SetAuditLogger(a AuditLogger) {
	e.audit = a
}

// SetCostController attaches the budget/cost gate every tool invocation
// is priced through. Unset (nil) Executors price nothing.
func (e *Executor) SetCostController(c *CostController) {
	e.costs = c
}

// auditCall records one tool invocation's outcome, if an AuditLogger is
// attached. Logging never blocks or fails the transaction.
func (e *Executor) auditCall(ctx context.Context, call types.ToolInvocation, out types.ToolOutput, elapsedMs int64) {
	if e.audit == nil {
		return
	}
	e.audit.LogAsync(AuditEntry{
		ID:              uuid.NewString(),
		Timestamp:       time.Now(),
		ToolName:        call.ToolName,
		CallID:          call.ID,
		Parameters:      call.Parameters,
		Success:         out.Success,
		Error:           out.Error,
		ExecutionTimeMs: elapsedMs,
	})
}

// Run executes calls in order under ACID-like two-phase semantics.
// Phase 1 validates every call and captures the initial
// checkpoint; Phase 2 executes each call, checkpointing before every call
// after the first, and rolls back to the initial checkpoint on failure.
func (e *Executor) Run(ctx context.Context, calls []types.ToolInvocation) TransactionResult {
	start := time.Now()
	txn := &Transaction{
		TransactionID:  uuid.NewString(),
		IsolationLevel: e.config.IsolationLevel,
		StartTime:      start,
	}

	// Phase 1 — Validate.
	type planned struct {
		call       types.ToolInvocation
		tool       Tool
		normalized json.RawMessage
	}
	plans := make([]planned, 0, len(calls))
	for _, call := range calls {
		tool, schema, ok := e.registry.Get(call.ToolName)
		if !ok {
			return e.abort(txn, start, types.NewError(types.ErrToolNotFound, fmt.Sprintf("tool not found: %s", call.ToolName)))
		}
		normalized, err := validateParameters(schema, call.Parameters)
		if err != nil {
			return e.abort(txn, start, err)
		}
		plans = append(plans, planned{call: call, tool: tool, normalized: normalized})
	}

	initial, err := e.checkpoint.Create(ctx, e.config.EnableSnapshots, map[string]any{"phase": "initial"})
	if err != nil {
		return e.abort(txn, start, err)
	}
	txn.Checkpoints = append(txn.Checkpoints, initial)

	// Phase 2 — Execute. A failure at any call aborts the whole
	// transaction: rollback always restores the initial checkpoint, per
	// the invariant that a rolled-back transaction leaves no partial
	// mutation — the per-call checkpoints exist to bound retry/replan
	// cost, not to allow a partial commit.
	results := make([]types.ToolOutput, 0, len(plans))
	for k, p := range plans {
		if k > 0 {
			cp, err := e.checkpoint.Create(ctx, e.config.EnableSnapshots, map[string]any{"call_index": k})
			if err != nil {
				return e.rollbackAndAbort(ctx, txn, initial, start, err)
			}
			txn.Checkpoints = append(txn.Checkpoints, cp)
		}

		output := e.invoke(ctx, p.call, p.tool, p.normalized)
		if !output.Success {
			results = append(results, output)
			return e.rollbackAndAbort(ctx, txn, initial, start,
				fmt.Errorf("call %s (%s): %s", p.call.ID, p.call.ToolName, output.Error))
		}
		results = append(results, output)
	}

	// Commit.
	txn.Committed = true
	for _, cp := range txn.Checkpoints {
		_ = e.checkpoint.Discard(cp)
	}

	return TransactionResult{
		Success:         true,
		Results:         results,
		TransactionID:   txn.TransactionID,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
}

func (e *Executor) invoke(ctx context.Context, call types.ToolInvocation, tool Tool, parameters json.RawMessage) types.ToolOutput {
	ctx, span := tracer.Start(ctx, "executor.tool_call",
		trace.WithAttributes(
			attribute.String("tool_name", call.ToolName),
			attribute.String("call_id", call.ID),
		))
	defer span.End()

	if e.limiter != nil && !e.limiter.Allow(call.ToolName) {
		out := types.ToolOutput{
			CallID: call.ID, ToolName: call.ToolName, Success: false,
			Error: fmt.Sprintf("rate limit exceeded for tool %q", call.ToolName),
		}
		span.SetStatus(codes.Error, out.Error)
		e.auditCall(ctx, call, out, 0)
		return out
	}

	var callCost float64
	if e.costs != nil {
		callCost = e.costs.CalculateCost(call.ToolName, parameters)
		if check := e.costs.Check(call.ToolName, callCost); !check.Allowed {
			out := types.ToolOutput{
				CallID: call.ID, ToolName: call.ToolName, Success: false,
				Error: fmt.Sprintf("budget exceeded for tool %q: %s", call.ToolName, check.Reason),
			}
			span.SetStatus(codes.Error, out.Error)
			e.auditCall(ctx, call, out, 0)
			return out
		}
	}

	timeout := time.Duration(e.config.DefaultTimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := tool.Invoke(callCtx, parameters)
	elapsed := time.Since(start).Milliseconds()

	var result types.ToolOutput
	switch {
	case callCtx.Err() == context.DeadlineExceeded:
		result = types.ToolOutput{
			CallID: call.ID, ToolName: call.ToolName, Success: false,
			Error:           fmt.Sprintf("Timeout after %ds", e.config.DefaultTimeoutS),
			ExecutionTimeMs: elapsed,
		}
	case err != nil:
		result = types.ToolOutput{
			CallID: call.ID, ToolName: call.ToolName, Success: false,
			Error: err.Error(), ExecutionTimeMs: elapsed,
		}
	default:
		result = types.ToolOutput{
			CallID: call.ID, ToolName: call.ToolName, Success: true,
			Output: out, ExecutionTimeMs: elapsed,
		}
	}

	if result.Success {
		span.SetStatus(codes.Ok, "")
		if e.costs != nil {
			e.costs.Record(call.ID, call.ToolName, callCost)
		}
	} else {
		span.SetStatus(codes.Error, result.Error)
	}
	e.auditCall(ctx, call, result, elapsed)
	return result
}

func (e *Executor) abort(txn *Transaction, start time.Time, err error) TransactionResult {
	return TransactionResult{
		Success:         false,
		Error:           err,
		TransactionID:   txn.TransactionID,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
}

// rollbackAndAbort restores restoreTo (Run always passes the initial
// checkpoint), discards all checkpoints, and marks the transaction
// rolled-back.
func (e *Executor) rollbackAndAbort(ctx context.Context, txn *Transaction, restoreTo *Checkpoint, start time.Time, err error) TransactionResult {
	if restoreErr := e.checkpoint.Restore(ctx, restoreTo); restoreErr != nil {
		e.logger.Error("rollback restore failed", zap.Error(restoreErr))
	}
	for _, cp := range txn.Checkpoints {
		_ = e.checkpoint.Discard(cp)
	}
	txn.RolledBack = true

	return TransactionResult{
		Success:         false,
		Error:           err,
		TransactionID:   txn.TransactionID,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
}
