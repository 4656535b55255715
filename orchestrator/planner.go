package orchestrator

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/superagent-run/superagent/eventbus"
	"github.com/superagent-run/superagent/types"
)

// PlanRequestedData is the payload carried by a PLAN_REQUESTED event.
type PlanRequestedData struct {
	Task    types.Task
	Context *types.UnifiedContext
}

// PlanReadyData is the payload carried by a PLAN_READY event.
type PlanReadyData struct {
	Plan *types.Plan
}

// PlanFailedData is the payload carried by a PLAN_FAILED event.
type PlanFailedData struct {
	TaskID string
	Error  string
}

var numberedLineRE = regexp.MustCompile(`^\s*(?:(\d+)[.):]|Step\s+(\d+)\s*:)\s*(.+)$`)

// PlannerAgent subscribes to PLAN_REQUESTED, produces a Plan via an LLM
// call, and publishes PLAN_READY (or PLAN_FAILED).
type PlannerAgent struct {
	bus       *eventbus.Bus
	generator Generator
	logger    *zap.Logger
}

// NewPlannerAgent registers the planner's PLAN_REQUESTED subscription.
func NewPlannerAgent(bus *eventbus.Bus, generator Generator, logger *zap.Logger) *PlannerAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &PlannerAgent{bus: bus, generator: generator, logger: logger.With(zap.String("component", "planner_agent"))}
	bus.Subscribe(eventbus.EventPlanRequested, p.handlePlanRequested)
	return p
}

func (p *PlannerAgent) handlePlanRequested(event eventbus.Event) error {
	data, ok := event.Data.(PlanRequestedData)
	if !ok {
		return fmt.Errorf("planner: unexpected event payload type %T", event.Data)
	}

	plan, err := p.GeneratePlan(context.Background(), data.Task)
	if err != nil {
		p.bus.Publish(eventbus.NewEvent(eventbus.EventPlanFailed, "planner", PlanFailedData{
			TaskID: data.Task.ID, Error: err.Error(),
		}, event.CorrelationID))
		return err
	}

	p.bus.Publish(eventbus.NewEvent(eventbus.EventPlanReady, "planner", PlanReadyData{Plan: plan}, event.CorrelationID))
	return nil
}

// GeneratePlan calls the generator, parses its output as JSON first, and
// falls back to a line-based heuristic on parse failure.
func (p *PlannerAgent) GeneratePlan(ctx context.Context, task types.Task) (*types.Plan, error) {
	raw, err := p.generator.Generate(ctx, planningPrompt(task))
	if err != nil {
		return nil, err
	}

	plan, jsonErr := parsePlanJSON(raw, task)
	if jsonErr != nil {
		plan = parsePlanFallback(raw, task)
	}

	capSteps(plan, task.MaxSteps)
	buildDependencyGraph(plan)
	detectParallelGroups(plan)

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func planningPrompt(task types.Task) string {
	return fmt.Sprintf("Produce a JSON plan for the task: %s", task.Description)
}

// planJSON mirrors types.Plan's shape for unmarshalling model output.
type planJSON struct {
	Steps []struct {
		ID            string   `json:"id"`
		Type          string   `json:"type"`
		Description   string   `json:"description"`
		ToolName      string   `json:"tool_name"`
		Dependencies  []string `json:"dependencies"`
		ParallelGroup string   `json:"parallel_group"`
	} `json:"steps"`
	Reasoning string `json:"reasoning"`
}

func parsePlanJSON(raw string, task types.Task) (*types.Plan, error) {
	var parsed planJSON
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		return nil, err
	}
	plan := &types.Plan{TaskID: task.ID, Reasoning: parsed.Reasoning}
	for _, s := range parsed.Steps {
		plan.Steps = append(plan.Steps, types.Step{
			ID:            s.ID,
			Type:          types.StepType(s.Type),
			Description:   s.Description,
			ToolName:      s.ToolName,
			Dependencies:  s.Dependencies,
			ParallelGroup: s.ParallelGroup,
			MaxRetries:    3,
		})
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("planner: parsed JSON contained no steps")
	}
	return plan, nil
}

// parsePlanFallback emits one ACT step per numbered/"Step N:" line, with
// at least one step containing the original task description.
func parsePlanFallback(raw string, task types.Task) *types.Plan {
	plan := &types.Plan{TaskID: task.ID, Reasoning: "fallback: line-based parse"}

	scanner := bufio.NewScanner(strings.NewReader(raw))
	i := 0
	for scanner.Scan() {
		line := scanner.Text()
		m := numberedLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		i++
		plan.Steps = append(plan.Steps, types.Step{
			ID:          fmt.Sprintf("step-%d", i),
			Type:        types.StepAct,
			Description: strings.TrimSpace(m[3]),
			MaxRetries:  3,
		})
	}

	if len(plan.Steps) == 0 {
		plan.Steps = append(plan.Steps, types.Step{
			ID:          "step-1",
			Type:        types.StepAct,
			Description: task.Description,
			MaxRetries:  3,
		})
	}
	return plan
}

func capSteps(plan *types.Plan, maxSteps int) {
	if maxSteps > 0 && len(plan.Steps) > maxSteps {
		plan.Steps = plan.Steps[:maxSteps]
	}
}

func buildDependencyGraph(plan *types.Plan) {
	plan.DependencyGraph = make(map[string][]string, len(plan.Steps))
	for _, s := range plan.Steps {
		plan.DependencyGraph[s.ID] = s.Dependencies
	}
}

// detectParallelGroups identifies (i) explicit parallel_group labels and
// (ii) maximal sets of steps with identical dependency sets that are not
// already grouped.
func detectParallelGroups(plan *types.Plan) {
	groups := make(map[string][]string)
	grouped := make(map[string]bool)

	for _, s := range plan.Steps {
		if s.ParallelGroup != "" {
			groups[s.ParallelGroup] = append(groups[s.ParallelGroup], s.ID)
			grouped[s.ID] = true
		}
	}

	depKey := func(deps []string) string {
		sorted := append([]string(nil), deps...)
		for i := 1; i < len(sorted); i++ {
			for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
				sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
			}
		}
		return strings.Join(sorted, ",")
	}

	byDeps := make(map[string][]string)
	for _, s := range plan.Steps {
		if grouped[s.ID] || len(s.Dependencies) == 0 {
			continue
		}
		key := depKey(s.Dependencies)
		byDeps[key] = append(byDeps[key], s.ID)
	}
	for key, ids := range byDeps {
		if len(ids) < 2 {
			continue
		}
		groupID := "auto-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()[:8]
		groups[groupID] = ids
	}

	if len(groups) > 0 {
		plan.ParallelGroups = groups
		for groupID, ids := range groups {
			for _, id := range ids {
				if step := plan.StepByID(id); step != nil && step.ParallelGroup == "" {
					step.ParallelGroup = groupID
				}
			}
		}
	}
}
