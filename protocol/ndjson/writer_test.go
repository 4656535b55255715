package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_EmitOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Emit(Envelope{Event: EventToolRequested, SessionID: "s1", RequestID: "r1"}, ToolFields{
		ToolName: "write_file",
		ToolArgs: map[string]any{"path": "README.md"},
	}))
	require.NoError(t, w.Emit(Envelope{Event: EventToolResult, SessionID: "s1", RequestID: "r1"}, ToolFields{
		ToolName: "write_file",
		Result:   "ok",
	}))

	scanner := bufio.NewScanner(&buf)
	var lines []map[string]any
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "tool.requested", lines[0]["event"])
	assert.Equal(t, "write_file", lines[0]["tool_name"])
	assert.Equal(t, "s1", lines[0]["session_id"])
	assert.Equal(t, "tool.result", lines[1]["event"])
	assert.NotContains(t, string(mustMarshal(lines[0])), "\n\n")
}

func TestWriter_RedactsSecretShapedFields(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Emit(Envelope{Event: EventToolRequested, SessionID: "s1", RequestID: "r1"}, ToolFields{
		ToolName: "http_call",
		ToolArgs: map[string]any{"api_key": "sk-abcdefghijklmno", "url": "https://example.com"},
	}))

	var m map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m))
	args := m["tool_args"].(map[string]any)
	assert.Equal(t, "[REDACTED]", args["api_key"])
	assert.Equal(t, "https://example.com", args["url"])
}

func TestWriter_ConcurrentEmitsDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(i int) {
			_ = w.Emit(Envelope{Event: EventMetricsTick, SessionID: "s1", RequestID: "r1"}, MetricsFields{
				Metrics: map[string]any{"n": i},
			})
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	scanner := bufio.NewScanner(&buf)
	count := 0
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		count++
	}
	assert.Equal(t, 10, count)
}

func mustMarshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
