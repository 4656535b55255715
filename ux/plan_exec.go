package ux

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/superagent-run/superagent/types"
)

// toolInvocationsFromPlan converts a Plan's ACT steps into
// ToolInvocations in dependency order. When applyPaths is non-empty,
// only steps whose tool_args.path is in the set are included.
func toolInvocationsFromPlan(plan *types.Plan, applyPaths []string) ([]types.ToolInvocation, error) {
	order, err := topoOrder(plan)
	if err != nil {
		return nil, err
	}

	var filter map[string]bool
	if len(applyPaths) > 0 {
		filter = make(map[string]bool, len(applyPaths))
		for _, p := range applyPaths {
			filter[p] = true
		}
	}

	calls := make([]types.ToolInvocation, 0, len(order))
	for _, id := range order {
		step := plan.StepByID(id)
		if step == nil || step.Type != types.StepAct {
			continue
		}
		if filter != nil {
			path, _, ok := writeFileArgs(step.ToolArgs)
			if !ok || !filter[path] {
				continue
			}
		}

		params, err := toolArgsJSON(step.ToolArgs)
		if err != nil {
			return nil, err
		}
		calls = append(calls, types.ToolInvocation{
			ID:         uuid.NewString(),
			ToolName:   step.ToolName,
			Parameters: params,
			Timestamp:  time.Now(),
		})
	}
	return calls, nil
}

// topoOrder returns step ids in an order consistent with
// plan.DependencyGraph, per Plan.Validate's acyclic invariant.
func topoOrder(plan *types.Plan) ([]string, error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(plan.Steps))
	var order []string

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("ux: dependency cycle at step %q", id)
		}
		color[id] = gray
		for _, dep := range plan.DependencyGraph[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		order = append(order, id)
		return nil
	}

	for _, step := range plan.Steps {
		if err := visit(step.ID); err != nil {
			return nil, err
		}
	}
	return order, nil
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
