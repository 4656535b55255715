package orchestrator

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/superagent-run/superagent/types"
)

// genAcyclicPlan builds a Plan whose step dependencies only ever point at
// earlier-indexed steps, which is sufficient to guarantee the DAG has no
// cycles without needing a separate cycle-detection pass in the
// generator itself.
func genAcyclicPlan(t *rapid.T) *types.Plan {
	n := rapid.IntRange(1, 12).Draw(t, "stepCount")
	steps := make([]types.Step, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("s%d", i)
		var deps []string
		if i > 0 {
			depCount := rapid.IntRange(0, i).Draw(t, fmt.Sprintf("depCount_%d", i))
			seen := make(map[int]bool, depCount)
			for len(deps) < depCount {
				d := rapid.IntRange(0, i-1).Draw(t, fmt.Sprintf("dep_%d_%d", i, len(deps)))
				if seen[d] {
					continue
				}
				seen[d] = true
				deps = append(deps, fmt.Sprintf("s%d", d))
			}
		}
		steps[i] = types.Step{ID: id, Type: types.StepAct, Dependencies: deps}
	}
	return &types.Plan{TaskID: "t1", Steps: steps}
}

// TestProperty_ReadyFrontierRespectsDependencyOrder simulates RunPlan's
// scheduling loop directly against readyFrontier: every step's scheduling
// round must come strictly after every one of its dependencies' rounds,
// and the simulation must terminate (no step is ever left permanently
// unrunnable) since genAcyclicPlan never produces a cycle.
func TestProperty_ReadyFrontierRespectsDependencyOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		plan := genAcyclicPlan(rt)
		a := &ExecutorAgent{}

		done := make(map[string]bool, len(plan.Steps))
		round := make(map[string]int, len(plan.Steps))
		r := 0
		for len(done) < len(plan.Steps) {
			frontier := a.readyFrontier(plan, done)
			if len(frontier) == 0 {
				rt.Fatalf("scheduling stalled with %d/%d steps done; generator should only produce acyclic plans", len(done), len(plan.Steps))
			}
			for _, id := range frontier {
				round[id] = r
				done[id] = true
			}
			r++
		}

		byID := make(map[string]types.Step, len(plan.Steps))
		for _, s := range plan.Steps {
			byID[s.ID] = s
		}
		for _, s := range plan.Steps {
			for _, dep := range s.Dependencies {
				if round[dep] >= round[s.ID] {
					rt.Fatalf("step %s (round %d) scheduled no later than its dependency %s (round %d)",
						s.ID, round[s.ID], dep, round[dep])
				}
			}
		}
	})
}
