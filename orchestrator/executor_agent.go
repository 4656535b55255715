package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/superagent-run/superagent/eventbus"
	"github.com/superagent-run/superagent/executor"
	"github.com/superagent-run/superagent/internal/metrics"
	"github.com/superagent-run/superagent/internal/pool"
	"github.com/superagent-run/superagent/types"
)

// StepRequestedData is the payload carried by a STEP_REQUESTED event.
type StepRequestedData struct {
	Plan *types.Plan
}

// StepStartedData/StepCompletedData/StepFailedData mirror one step's
// lifecycle on the bus.
type StepStartedData struct {
	TaskID string
	StepID string
}

type StepCompletedData struct {
	TaskID string
	StepID string
	Output any
}

type StepFailedData struct {
	TaskID string
	StepID string
	Error  string
}

// ExecutorAgent walks a Plan's dependency DAG, running ready steps in
// bounded parallel groups. THINK/REFLECT steps call the
// Generator; ACT steps dispatch to the Transactional Tool Executor;
// OBSERVE steps return the step's own Output field unchanged, with no
// side effects; outputs of other steps are not read.
type ExecutorAgent struct {
	bus         *eventbus.Bus
	generator   Generator
	toolExec    *executor.Executor
	planner     *PlannerAgent
	maxParallel int
	logger      *zap.Logger
	collector   *metrics.Collector
	pool        *pool.GoroutinePool
}

// SetMetricsCollector attaches the Prometheus collector used to record
// per-step agent execution metrics. Unset (nil) agents record nothing.
func (a *ExecutorAgent) SetMetricsCollector(c *metrics.Collector) {
	a.collector = c
}

// NewExecutorAgent registers the executor agent's PLAN_READY subscription.
func NewExecutorAgent(bus *eventbus.Bus, generator Generator, toolExec *executor.Executor, planner *PlannerAgent, maxParallel int, logger *zap.Logger) *ExecutorAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxParallel <= 0 {
		maxParallel = 5
	}
	poolCfg := pool.DefaultGoroutinePoolConfig()
	poolCfg.MaxWorkers = maxParallel

	a := &ExecutorAgent{
		bus:         bus,
		generator:   generator,
		toolExec:    toolExec,
		planner:     planner,
		maxParallel: maxParallel,
		logger:      logger.With(zap.String("component", "executor_agent")),
		pool:        pool.NewGoroutinePool(poolCfg),
	}
	bus.Subscribe(eventbus.EventPlanReady, a.handlePlanReady)
	return a
}

func (a *ExecutorAgent) handlePlanReady(event eventbus.Event) error {
	data, ok := event.Data.(PlanReadyData)
	if !ok {
		return fmt.Errorf("executor_agent: unexpected event payload type %T", event.Data)
	}

	ctx := context.Background()
	err := a.RunPlan(ctx, data.Plan, event.CorrelationID)
	if err != nil {
		a.bus.Publish(eventbus.NewEvent(eventbus.EventPlanFailed, "executor_agent",
			PlanFailedData{TaskID: data.Plan.TaskID, Error: err.Error()}, event.CorrelationID))
		return err
	}

	a.bus.Publish(eventbus.NewEvent(eventbus.EventPlanCompleted, "executor_agent",
		PlanReadyData{Plan: data.Plan}, event.CorrelationID))
	return nil
}

// RunPlan performs a topological walk of plan's dependency DAG, executing
// each ready frontier of steps (bounded to maxParallel at a time) before
// advancing. A failed ACT step triggers a one-shot replan through the
// PlannerAgent; the recovery sub-plan's steps are spliced in immediately
// after the failed step and retried up to step.MaxRetries times.
func (a *ExecutorAgent) RunPlan(ctx context.Context, plan *types.Plan, correlationID string) error {
	done := make(map[string]bool, len(plan.Steps))
	attempts := make(map[string]int, len(plan.Steps))

	for len(done) < len(plan.Steps) {
		frontier := a.readyFrontier(plan, done)
		if len(frontier) == 0 {
			return fmt.Errorf("executor_agent: no runnable steps remain; possible unresolved dependency")
		}

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			failure error
		)
		for _, stepID := range frontier {
			step := plan.StepByID(stepID)
			wg.Add(1)
			go func(step *types.Step) {
				defer wg.Done()

				// The pool caps actual concurrent execution at
				// maxParallel regardless of how wide this frontier is;
				// SubmitWait blocks this goroutine until its turn runs.
				err := a.pool.SubmitWait(ctx, func(ctx context.Context) error {
					a.bus.Publish(eventbus.NewEvent(eventbus.EventStepStarted, "executor_agent",
						StepStartedData{TaskID: plan.TaskID, StepID: step.ID}, correlationID))

					stepStart := time.Now()
					out, runErr := a.runStep(ctx, step)
					a.recordStepExecution(step, runErr, time.Since(stepStart))
					if runErr == nil {
						step.Output = out
					}
					return runErr
				})
				mu.Lock()
				defer mu.Unlock()

				if err != nil {
					attempts[step.ID]++
					maxRetries := step.MaxRetries
					if maxRetries <= 0 {
						maxRetries = 3
					}
					if attempts[step.ID] < maxRetries {
						// Leave step out of done so it is retried on the
						// next frontier pass.
						a.logger.Warn("step failed, will retry",
							zap.String("step_id", step.ID), zap.Int("attempt", attempts[step.ID]), zap.Error(err))
						return
					}
					a.bus.Publish(eventbus.NewEvent(eventbus.EventStepFailed, "executor_agent",
						StepFailedData{TaskID: plan.TaskID, StepID: step.ID, Error: err.Error()}, correlationID))
					if failure == nil {
						failure = fmt.Errorf("step %s: %w", step.ID, err)
					}
					return
				}

				done[step.ID] = true
				a.bus.Publish(eventbus.NewEvent(eventbus.EventStepCompleted, "executor_agent",
					StepCompletedData{TaskID: plan.TaskID, StepID: step.ID, Output: step.Output}, correlationID))
			}(step)
		}
		wg.Wait()

		if failure != nil {
			if a.planner == nil {
				return failure
			}
			if recovered := a.replan(ctx, plan, done, failure); recovered {
				continue
			}
			return failure
		}
	}
	return nil
}

// recordStepExecution forwards one step's execution outcome to the
// attached Prometheus collector, if any, and records the step's type as
// an agent state transition.
func (a *ExecutorAgent) recordStepExecution(step *types.Step, err error, duration time.Duration) {
	if a.collector == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	a.collector.RecordAgentExecution(step.ID, string(step.Type), status, duration)
	a.collector.RecordAgentStateTransition(step.ID, "running", status)
}

// readyFrontier returns step ids whose dependencies are all satisfied and
// that have not yet completed.
func (a *ExecutorAgent) readyFrontier(plan *types.Plan, done map[string]bool) []string {
	var frontier []string
	for _, step := range plan.Steps {
		if done[step.ID] {
			continue
		}
		ready := true
		for _, dep := range step.Dependencies {
			if !done[dep] {
				ready = false
				break
			}
		}
		if ready {
			frontier = append(frontier, step.ID)
		}
	}
	return frontier
}

func (a *ExecutorAgent) runStep(ctx context.Context, step *types.Step) (any, error) {
	switch step.Type {
	case types.StepThink, types.StepReflect:
		return a.generator.Generate(ctx, step.Description)

	case types.StepObserve:
		return step.Output, nil

	case types.StepAct:
		params, err := toolArgsJSON(step.ToolArgs)
		if err != nil {
			return nil, err
		}
		call := types.ToolInvocation{
			ID:         uuid.NewString(),
			ToolName:   step.ToolName,
			Parameters: params,
			Timestamp:  time.Now(),
		}
		result := a.toolExec.Run(ctx, []types.ToolInvocation{call})
		if !result.Success {
			if result.Error != nil {
				return nil, result.Error
			}
			return nil, fmt.Errorf("tool call failed")
		}
		if len(result.Results) == 0 {
			return nil, nil
		}
		return result.Results[0].Output, nil

	default:
		return nil, fmt.Errorf("executor_agent: unknown step type %q", step.Type)
	}
}

// replan asks the PlannerAgent for a recovery sub-plan and splices its
// steps into plan immediately after the failed region, clearing the
// failed steps from done so they are retried via the recovery path.
func (a *ExecutorAgent) replan(ctx context.Context, plan *types.Plan, done map[string]bool, cause error) bool {
	task := types.Task{
		ID:          plan.TaskID,
		Description: fmt.Sprintf("Recover from failure: %s", cause.Error()),
		MaxSteps:    len(plan.Steps),
	}
	recovery, err := a.planner.GeneratePlan(ctx, task)
	if err != nil || recovery == nil || len(recovery.Steps) == 0 {
		return false
	}

	plan.Steps = append(plan.Steps, recovery.Steps...)
	for id, deps := range recovery.DependencyGraph {
		plan.DependencyGraph[id] = deps
	}
	return true
}

func toolArgsJSON(args any) (json.RawMessage, error) {
	if args == nil {
		return json.RawMessage(`{}`), nil
	}
	if raw, ok := args.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(args)
}
