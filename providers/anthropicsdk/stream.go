package anthropicsdk

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/superagent-run/superagent/llm"
	"github.com/superagent-run/superagent/types"
)

// toolDelta accumulates partial_json fragments for one content block index
// until its content_block_stop event finalizes the tool call.
type toolDelta struct {
	id, name string
	frags    []string
}

// runStream drains an Anthropic SSE stream into StreamChunks on out,
// closing out when the stream ends or ctx is cancelled. Modeled on the
// content-block bookkeeping the official SDK examples use: text deltas
// pass straight through, tool_use deltas buffer until content_block_stop,
// and usage/stop_reason arrive on message_delta/message_stop.
func runStream(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion], provider, model string, out chan<- llm.StreamChunk) {
	defer close(out)
	defer stream.Close()

	tools := map[int64]*toolDelta{}
	var stopReason string

	send := func(chunk llm.StreamChunk) bool {
		chunk.Provider = provider
		if chunk.Model == "" {
			chunk.Model = model
		}
		select {
		case out <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			if tu, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				tools[ev.Index] = &toolDelta{id: tu.ID, name: tu.Name}
			}
		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text == "" {
					continue
				}
				if !send(llm.StreamChunk{Delta: types.Message{Role: types.RoleAssistant, Content: delta.Text}}) {
					return
				}
			case sdk.InputJSONDelta:
				if td := tools[ev.Index]; td != nil && delta.PartialJSON != "" {
					td.frags = append(td.frags, delta.PartialJSON)
				}
			}
		case sdk.ContentBlockStopEvent:
			if td := tools[ev.Index]; td != nil {
				delete(tools, ev.Index)
				raw := strings.Join(td.frags, "")
				if strings.TrimSpace(raw) == "" {
					raw = "{}"
				}
				msg := types.Message{
					Role: types.RoleAssistant,
					ToolCalls: []types.ToolCall{{
						ID:        td.id,
						Name:      td.name,
						Arguments: json.RawMessage(raw),
					}},
				}
				if !send(llm.StreamChunk{Delta: msg}) {
					return
				}
			}
		case sdk.MessageDeltaEvent:
			stopReason = string(ev.Delta.StopReason)
			usage := llm.ChatUsage{
				PromptTokens:     int(ev.Usage.InputTokens),
				CompletionTokens: int(ev.Usage.OutputTokens),
				TotalTokens:      int(ev.Usage.InputTokens + ev.Usage.OutputTokens),
			}
			if !send(llm.StreamChunk{Usage: &usage, FinishReason: stopReason}) {
				return
			}
		case sdk.MessageStopEvent:
			if !send(llm.StreamChunk{FinishReason: stopReason}) {
				return
			}
		}
	}
	if err := stream.Err(); err != nil {
		msg := &types.Error{Code: types.ErrUpstreamError, Message: err.Error(), Provider: provider, Retryable: true}
		send(llm.StreamChunk{Err: msg})
	}
}

func jsonMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

func jsonUnmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
