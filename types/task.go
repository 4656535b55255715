package types

import (
	"fmt"
	"sync"
)

// Priority is the single task-priority type. Registration rejects a
// named level being redefined to a different value, so no second,
// conflicting enum can creep in.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

var (
	priorityRegistryMu sync.Mutex
	priorityRegistry   = map[string]Priority{
		"low":      PriorityLow,
		"normal":   PriorityNormal,
		"high":     PriorityHigh,
		"critical": PriorityCritical,
	}
)

// RegisterPriority adds a named priority level. It panics if the name is
// already registered to a different value, per the reference's ambiguity
// between its two TaskPriority enums — conflicting registrations are a
// programming error, not a runtime condition to recover from.
func RegisterPriority(name string, value Priority) {
	priorityRegistryMu.Lock()
	defer priorityRegistryMu.Unlock()
	if existing, ok := priorityRegistry[name]; ok && existing != value {
		panic(fmt.Sprintf("types: priority %q already registered as %d, cannot redefine as %d", name, existing, value))
	}
	priorityRegistry[name] = value
}

// PriorityByName resolves a registered priority name.
func PriorityByName(name string) (Priority, bool) {
	priorityRegistryMu.Lock()
	defer priorityRegistryMu.Unlock()
	p, ok := priorityRegistry[name]
	return p, ok
}

// Task is a unit of work submitted to the Orchestrator.
type Task struct {
	ID               string   `json:"id"`
	Description      string   `json:"description"`
	Priority         Priority `json:"priority"`
	Constraints      []string `json:"constraints,omitempty"`
	SuccessCriteria  []string `json:"success_criteria,omitempty"`
	MaxSteps         int      `json:"max_steps"`
	TimeoutS         int      `json:"timeout_s"`
}

// StepType enumerates the kinds of Step a Plan can contain.
type StepType string

const (
	StepThink   StepType = "THINK"
	StepAct     StepType = "ACT"
	StepObserve StepType = "OBSERVE"
	StepReflect StepType = "REFLECT"
)

// Step is one node of a Plan's dependency DAG.
type Step struct {
	ID                string   `json:"id"`
	Type              StepType `json:"type"`
	Description       string   `json:"description"`
	ToolName          string   `json:"tool_name,omitempty"`
	ToolArgs          any      `json:"tool_args,omitempty"`
	Dependencies      []string `json:"dependencies,omitempty"`
	Priority          Priority `json:"priority"`
	SuccessProbability float64 `json:"success_probability"`
	MaxRetries        int      `json:"max_retries"`
	ParallelGroup     string   `json:"parallel_group,omitempty"`

	// Output holds the result produced when this step was executed.
	Output any `json:"output,omitempty"`
}

// Plan is the output of the PlannerAgent for one Task.
type Plan struct {
	TaskID             string              `json:"task_id"`
	Steps              []Step              `json:"steps"`
	Reasoning          string              `json:"reasoning,omitempty"`
	DependencyGraph    map[string][]string `json:"dependency_graph"`
	ParallelGroups     map[string][]string `json:"parallel_groups,omitempty"`
	EstimatedDuration  *int                `json:"estimated_duration,omitempty"`
	SuccessProbability float64             `json:"success_probability"`
}

// Validate checks the plan's structural invariant: the dependency
// graph is acyclic and every referenced step id exists in Steps.
func (p *Plan) Validate() error {
	index := make(map[string]*Step, len(p.Steps))
	for i := range p.Steps {
		index[p.Steps[i].ID] = &p.Steps[i]
	}
	for id, deps := range p.DependencyGraph {
		if _, ok := index[id]; !ok {
			return NewError(ErrInvalidRequest, fmt.Sprintf("plan: dependency graph references unknown step %q", id))
		}
		for _, d := range deps {
			if _, ok := index[d]; !ok {
				return NewError(ErrInvalidRequest, fmt.Sprintf("plan: step %q depends on unknown step %q", id, d))
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(p.Steps))
	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return NewError(ErrInvalidRequest, fmt.Sprintf("plan: dependency cycle detected at step %q", id))
		}
		color[id] = gray
		for _, d := range p.DependencyGraph[id] {
			if err := visit(d); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}
	for i := range p.Steps {
		if err := visit(p.Steps[i].ID); err != nil {
			return err
		}
	}
	return nil
}

// StepByID returns a pointer into Steps for quick lookup (arena-style
// addressing by id, per the reference's "plan graphs as arrays, not
// pointer-linked nodes" design note).
func (p *Plan) StepByID(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}
