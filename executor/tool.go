// Package executor implements the Transactional Tool Executor: a
// two-phase, checkpointed runner that executes a sequence of tool calls
// with rollback and per-call timeouts.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/superagent-run/superagent/types"
)

// Tool is the minimal capability interface every registered tool must
// satisfy — concrete tools implement this directly, no base class.
type Tool interface {
	Name() string
	Description() string
	// ParameterSchema returns the tool's declared JSON Schema for its
	// parameters.
	ParameterSchema() json.RawMessage
	// Invoke executes the tool with already-validated parameters.
	Invoke(ctx context.Context, parameters json.RawMessage) (json.RawMessage, error)
}

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry holds immutable-after-registration tool definitions, shared
// across sessions. Re-registering a name replaces the tool without
// duplicating it; registration is idempotent.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registeredTool)}
}

// Register compiles tool's parameter schema and adds it to the registry,
// replacing any prior registration under the same name.
func (r *Registry) Register(tool Tool) error {
	compiler := jsonschema.NewCompiler()
	uri := "mem://tools/" + tool.Name()

	doc, err := jsonschema.UnmarshalJSON(bytesReader(tool.ParameterSchema()))
	if err != nil {
		return types.NewError(types.ErrConfigInvalid, fmt.Sprintf("tool %q: invalid parameter schema: %v", tool.Name(), err))
	}
	if err := compiler.AddResource(uri, doc); err != nil {
		return types.NewError(types.ErrConfigInvalid, fmt.Sprintf("tool %q: failed to load schema: %v", tool.Name(), err))
	}
	schema, err := compiler.Compile(uri)
	if err != nil {
		return types.NewError(types.ErrConfigInvalid, fmt.Sprintf("tool %q: failed to compile schema: %v", tool.Name(), err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = &registeredTool{tool: tool, schema: schema}
	return nil
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (Tool, *jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	if !ok {
		return nil, nil, false
	}
	return rt.tool, rt.schema, true
}

// validateParameters type-checks, enum-checks, and defaults-substitutes
// parameters against the tool's declared schema.
func validateParameters(schema *jsonschema.Schema, parameters json.RawMessage) (json.RawMessage, error) {
	var instance any
	if len(parameters) == 0 {
		instance = map[string]any{}
	} else if err := json.Unmarshal(parameters, &instance); err != nil {
		return nil, types.NewError(types.ErrToolValidationFailed, fmt.Sprintf("parameters: invalid JSON: %v", err))
	}

	if err := schema.Validate(instance); err != nil {
		return nil, types.NewError(types.ErrToolValidationFailed, fmt.Sprintf("parameters failed schema validation: %v", err))
	}

	applyDefaults(schema, instance)

	normalized, err := json.Marshal(instance)
	if err != nil {
		return nil, types.NewError(types.ErrToolValidationFailed, fmt.Sprintf("parameters: re-marshal failed: %v", err))
	}
	return normalized, nil
}

// applyDefaults substitutes declared defaults for properties the instance
// omits. It runs after validation, so a missing required property has
// already been rejected and only optional ones are filled. jsonschema.Schema does not mutate instances itself, so
// the substitution is done via the compiled schema's own property map.
func applyDefaults(schema *jsonschema.Schema, instance any) {
	obj, ok := instance.(map[string]any)
	if !ok {
		return
	}
	for name, propSchema := range schema.Properties {
		if _, present := obj[name]; present {
			continue
		}
		if propSchema.Default != nil {
			obj[name] = propSchema.Default
		}
	}
}
