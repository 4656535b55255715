package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// WriteFileTool overwrites a file's contents. It is a reference
// implementation of Tool; the executor's contract does not fix the
// domain of built-in tools beyond this interface.
type WriteFileTool struct{}

func (WriteFileTool) Name() string        { return "write_file" }
func (WriteFileTool) Description() string { return "Overwrite a file with the given content." }
func (WriteFileTool) ParameterSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"content": {"type": "string"}
		},
		"required": ["path", "content"]
	}`)
}

func (WriteFileTool) Invoke(ctx context.Context, parameters json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(parameters, &args); err != nil {
		return nil, err
	}
	if err := os.WriteFile(args.Path, []byte(args.Content), 0o644); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"bytes_written": len(args.Content)})
}

// FailingTool always fails — used to exercise rollback paths in tests and
// as a stand-in for tools that report ToolExecutionFailed.
type FailingTool struct {
	ErrMessage string
}

func (FailingTool) Name() string        { return "always_fail" }
func (FailingTool) Description() string { return "A tool that always fails." }
func (FailingTool) ParameterSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (f FailingTool) Invoke(ctx context.Context, parameters json.RawMessage) (json.RawMessage, error) {
	msg := f.ErrMessage
	if msg == "" {
		msg = "tool execution failed"
	}
	return nil, fmt.Errorf("%s", msg)
}
