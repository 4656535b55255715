package ux

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/superagent-run/superagent/executor"
	"github.com/superagent-run/superagent/persistence"
	"github.com/superagent-run/superagent/protocol/ndjson"
	"github.com/superagent-run/superagent/types"
)

// Planner produces a Plan for one Task. Satisfied by
// *orchestrator.PlannerAgent without ux importing orchestrator.
type Planner interface {
	GeneratePlan(ctx context.Context, task types.Task) (*types.Plan, error)
}

// UXContext is the per-turn record threaded through the state machine and
// returned by ProcessInput.
type UXContext struct {
	SessionID    string
	RequestID    string
	State        State
	Text         string
	ContextFiles map[string]string
	Intent       Intent
	Confidence   float64
	Task         types.Task
	Plan         *types.Plan
	Preview      *PreviewResult
	Checkpoint   *executor.Checkpoint
	Error        string
}

// Engine drives one user turn through parse -> resolve intent -> plan ->
// preview -> (confirm) -> execute.
type Engine struct {
	intent      IntentResolver
	planner     Planner
	diff        *DiffEngine
	fusion      *ContextFusion
	toolExec    *executor.Executor
	checkpoints *executor.CheckpointManager
	logger      *zap.Logger

	mu       sync.Mutex
	machines map[string]*StateMachine
	pending  map[string]*UXContext // last CONFIRMING-or-later turn per session

	emit    *ndjson.Writer   // nil unless running headless
	persist persistence.Store // nil unless durable session/checkpoint persistence is enabled
}

// SetPersister attaches a durable Store so session checkpoints survive a
// process restart. Unset (nil)
// Engines keep checkpoints in memory only, as today — the same opt-in
// shape as SetEmitter.
func (e *Engine) SetPersister(store persistence.Store) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.persist = store
}

// SetEmitter attaches the NDJSON protocol writer used in headless mode.
// Unset (nil) Engines run silently, as interactive callers render their
// own UI rather than consuming the wire protocol.
func (e *Engine) SetEmitter(w *ndjson.Writer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit = w
}

func (e *Engine) emitLine(uc *UXContext, evt ndjson.EventType, extra any) {
	if e.emit == nil {
		return
	}
	_ = e.emit.Emit(ndjson.Envelope{
		Event:     evt,
		SessionID: uc.SessionID,
		RequestID: uc.RequestID,
	}, extra)
}

// NewEngine wires an Engine over its collaborators. fusion may be nil if
// Context Fusion is not needed by the caller.
func NewEngine(intent IntentResolver, planner Planner, fusion *ContextFusion, toolExec *executor.Executor, checkpoints *executor.CheckpointManager, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		intent:      intent,
		planner:     planner,
		diff:        NewDiffEngine(),
		fusion:      fusion,
		toolExec:    toolExec,
		checkpoints: checkpoints,
		logger:      logger.With(zap.String("component", "ux_engine")),
		machines:    make(map[string]*StateMachine),
		pending:     make(map[string]*UXContext),
	}
}

func (e *Engine) machineFor(sessionID string) *StateMachine {
	e.mu.Lock()
	defer e.mu.Unlock()
	sm, ok := e.machines[sessionID]
	if !ok {
		sm = NewStateMachine()
		e.machines[sessionID] = sm
	}
	return sm
}

// ProcessInput runs one turn to completion through PREVIEWING, halting in
// CONFIRMING. contextFiles are read from disk and folded
// into the returned UXContext's ContextFiles map.
func (e *Engine) ProcessInput(ctx context.Context, text, sessionID string, contextFiles []string) (*UXContext, error) {
	sm := e.machineFor(sessionID)
	uc := &UXContext{SessionID: sessionID, RequestID: uuid.NewString(), Text: text, State: StateIdle}

	// A finished turn (COMPLETED or ERROR) folds back to IDLE so the
	// session's machine can run the next turn.
	if s := sm.State(); s == StateCompleted || s == StateError {
		if err := sm.Transition(StateIdle, uc); err != nil {
			return uc, err
		}
	}

	if err := sm.Transition(StateParsingInput, uc); err != nil {
		return uc, err
	}
	uc.State = StateParsingInput
	uc.ContextFiles = loadContextFiles(contextFiles)

	if err := sm.Transition(StateResolvingIntent, uc); err != nil {
		return uc, err
	}
	uc.State = StateResolvingIntent
	intent, confidence, err := e.intent.ResolveIntent(ctx, text)
	if err != nil {
		return e.fail(sm, uc, err)
	}
	uc.Intent, uc.Confidence = intent, confidence

	if err := sm.Transition(StatePlanning, uc); err != nil {
		return uc, err
	}
	uc.State = StatePlanning
	uc.Task = types.Task{ID: uuid.NewString(), Description: text, MaxSteps: 20}
	plan, err := e.planner.GeneratePlan(ctx, uc.Task)
	if err != nil {
		return e.fail(sm, uc, err)
	}
	uc.Plan = plan

	if err := sm.Transition(StatePreviewing, uc); err != nil {
		return uc, err
	}
	uc.State = StatePreviewing
	preview, err := e.diff.GeneratePreview(fileChangesFromPlan(plan, uc.ContextFiles))
	if err != nil {
		return e.fail(sm, uc, err)
	}
	uc.Preview = preview
	for _, fd := range preview.Files {
		e.emitLine(uc, ndjson.EventDiffPreview, ndjson.DiffFields{FilePath: fd.Path, DiffContent: fd.UnifiedDiff})
	}

	if err := sm.Transition(StateConfirming, uc); err != nil {
		return uc, err
	}
	uc.State = StateConfirming

	e.mu.Lock()
	e.pending[sessionID] = uc
	e.mu.Unlock()

	return uc, nil
}

// ExecutePlan runs the plan awaiting confirmation for sessionID. When
// applyPaths is non-empty, only ACT steps whose tool_args.path is in the
// set are invoked (apply_partial); an empty set applies
// every ACT step.
func (e *Engine) ExecutePlan(ctx context.Context, sessionID string, applyPaths []string) (*UXContext, error) {
	e.mu.Lock()
	uc, ok := e.pending[sessionID]
	e.mu.Unlock()
	if !ok || uc.State != StateConfirming {
		return nil, fmt.Errorf("ux: no plan awaiting confirmation for session %s", sessionID)
	}
	sm := e.machineFor(sessionID)

	if err := sm.Transition(StateExecuting, uc); err != nil {
		return uc, err
	}
	uc.State = StateExecuting

	cp, err := e.checkpoints.Create(ctx, true, map[string]any{"session_id": sessionID, "request_id": uc.RequestID})
	if err != nil {
		return e.fail(sm, uc, err)
	}
	uc.Checkpoint = cp
	e.emitLine(uc, ndjson.EventSessionCheckpointed, ndjson.SessionFields{CheckpointID: cp.CheckpointID})
	e.persistCheckpoint(ctx, sessionID, cp)

	calls, err := toolInvocationsFromPlan(uc.Plan, applyPaths)
	if err != nil {
		return e.fail(sm, uc, err)
	}

	result := e.toolExec.Run(ctx, calls)
	if !result.Success {
		// The Transactional Tool Executor already rolled back to its own
		// initial checkpoint; the outer session checkpoint is retained
		// so the caller can still RollbackToCheckpoint explicitly.
		var execErr error
		if result.Error != nil {
			execErr = result.Error
		} else {
			execErr = fmt.Errorf("ux: plan execution failed")
		}
		return e.fail(sm, uc, execErr)
	}

	// Selecting a subset of whole files via apply_partial
	// still emits one diff.applied line per file actually written; the
	// distinct diff.partial_applied event is reserved for a file where
	// only some hunks of its diff were applied, which the file-level
	// selection above never produces.
	applyAll := len(applyPaths) == 0
	if uc.Preview != nil {
		for _, fd := range uc.Preview.Files {
			if !applyAll && !pathSelected(applyPaths, fd.Path) {
				continue
			}
			e.emitLine(uc, ndjson.EventDiffApplied, ndjson.DiffFields{FilePath: fd.Path, CheckpointID: cp.CheckpointID})
		}
	}

	// A checkpoint written to the durable Store keeps its snapshot so
	// RestoreCheckpoint can copy it back later.
	if e.persist == nil {
		_ = e.checkpoints.Discard(cp)
	}
	if err := sm.Transition(StateCompleted, uc); err != nil {
		return uc, err
	}
	uc.State = StateCompleted

	e.mu.Lock()
	delete(e.pending, sessionID)
	e.mu.Unlock()

	return uc, nil
}

// RollbackToCheckpoint restores the session's retained checkpoint and
// returns the state machine to IDLE.
func (e *Engine) RollbackToCheckpoint(ctx context.Context, sessionID string) error {
	e.mu.Lock()
	uc, ok := e.pending[sessionID]
	e.mu.Unlock()
	if !ok || uc.Checkpoint == nil {
		return fmt.Errorf("ux: no retained checkpoint for session %s", sessionID)
	}
	if err := e.checkpoints.Restore(ctx, uc.Checkpoint); err != nil {
		return err
	}
	e.emitLine(uc, ndjson.EventDiffRollback, ndjson.DiffFields{CheckpointID: uc.Checkpoint.CheckpointID})
	_ = e.checkpoints.Discard(uc.Checkpoint)

	sm := e.machineFor(sessionID)
	if err := sm.Transition(StateIdle, uc); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.pending, sessionID)
	e.mu.Unlock()
	return nil
}

// persistCheckpoint writes cp to the durable Store, if one is attached.
// Failure is logged, not surfaced — durability is a best-effort
// convenience on top of the in-memory checkpoint RollbackToCheckpoint
// already relies on, not a precondition for a turn to succeed.
func (e *Engine) persistCheckpoint(ctx context.Context, sessionID string, cp *executor.Checkpoint) {
	if e.persist == nil {
		return
	}
	state, err := json.Marshal(cp)
	if err != nil {
		e.logger.Warn("serialize checkpoint for persistence", zap.Error(err))
		return
	}
	record := persistence.PersistedCheckpoint{
		CheckpointID: cp.CheckpointID,
		SessionID:    sessionID,
		CreatedAt:    cp.Timestamp,
		State:        state,
	}
	if err := e.persist.SaveCheckpoint(ctx, record); err != nil {
		e.logger.Warn("persist checkpoint", zap.String("checkpoint_id", cp.CheckpointID), zap.Error(err))
	}
}

// RestoreCheckpoint loads checkpointID from the durable Store and
// restores it onto the working tree, emitting session.restored. Unlike
// RollbackToCheckpoint, it works across process restarts: sessionID need
// not have a live in-memory UXContext, since the checkpoint came from
// durable storage rather than e.pending.
func (e *Engine) RestoreCheckpoint(ctx context.Context, sessionID, checkpointID string) error {
	if e.persist == nil {
		return fmt.Errorf("ux: no persister attached, cannot restore checkpoint %s", checkpointID)
	}
	record, err := e.persist.LoadCheckpoint(ctx, checkpointID)
	if err != nil {
		return err
	}
	if record.SessionID != sessionID {
		return fmt.Errorf("ux: checkpoint %s does not belong to session %s", checkpointID, sessionID)
	}

	var cp executor.Checkpoint
	if err := json.Unmarshal(record.State, &cp); err != nil {
		return fmt.Errorf("ux: decode persisted checkpoint %s: %w", checkpointID, err)
	}
	if err := e.checkpoints.Restore(ctx, &cp); err != nil {
		return err
	}

	requestID := uuid.NewString()
	if e.emit != nil {
		_ = e.emit.Emit(ndjson.Envelope{
			Event:     ndjson.EventSessionRestored,
			SessionID: sessionID,
			RequestID: requestID,
		}, ndjson.SessionFields{CheckpointID: checkpointID})
	}
	return nil
}

func (e *Engine) fail(sm *StateMachine, uc *UXContext, err error) (*UXContext, error) {
	uc.Error = err.Error()
	_ = sm.Transition(StateError, uc)
	uc.State = StateError
	e.logger.Warn("ux turn failed", zap.String("session_id", uc.SessionID), zap.Error(err))
	errType := string(types.ErrInternalError)
	if se, ok := err.(*types.Error); ok {
		errType = string(se.Code)
	}
	e.emitLine(uc, ndjson.EventErrorUser, ndjson.ErrorFields{
		ErrorType:    errType,
		ErrorMessage: err.Error(),
		Recoverable:  uc.Checkpoint != nil,
	})
	return uc, err
}

// pathSelected reports whether path is one of the apply_partial
// selections.
func pathSelected(selected []string, path string) bool {
	for _, s := range selected {
		if s == path {
			return true
		}
	}
	return false
}

func loadContextFiles(paths []string) map[string]string {
	files := make(map[string]string, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		files[p] = string(data)
	}
	return files
}

// fileChangesFromPlan derives a FileChange per write_file/edit_file ACT
// step so the preview stage can diff proposed content against whatever
// was loaded for that path in ContextFiles (empty current content for a
// new file).
func fileChangesFromPlan(plan *types.Plan, current map[string]string) []FileChange {
	var changes []FileChange
	for _, step := range plan.Steps {
		if step.Type != types.StepAct {
			continue
		}
		path, content, ok := writeFileArgs(step.ToolArgs)
		if !ok {
			continue
		}
		changes = append(changes, FileChange{Path: path, Current: current[path], Proposed: content})
	}
	return changes
}

func writeFileArgs(args any) (path, content string, ok bool) {
	m, isMap := args.(map[string]any)
	if !isMap {
		return "", "", false
	}
	path, hasPath := m["path"].(string)
	content, _ = m["content"].(string)
	return path, content, hasPath
}
