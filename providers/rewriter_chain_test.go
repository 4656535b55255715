package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superagent-run/superagent/llm"
	"github.com/superagent-run/superagent/llm/middleware"
)

// The Claude adapter runs every outgoing request through a RewriterChain
// before encoding it; these tests pin down the chain behavior the adapter
// relies on, most importantly that an empty tools array (which the
// upstream API rejects) is stripped along with its tool_choice.
func TestRewriterChain_EmptyToolsStripped(t *testing.T) {
	chain := middleware.NewRewriterChain(middleware.NewEmptyToolsCleaner())

	tests := []struct {
		name       string
		tools      []llm.ToolSchema
		toolChoice string
		wantNil    bool
		wantChoice string
	}{
		{
			name:       "empty tools clears tool_choice",
			tools:      []llm.ToolSchema{},
			toolChoice: "auto",
			wantNil:    true,
			wantChoice: "",
		},
		{
			name:       "nil tools stay nil",
			tools:      nil,
			toolChoice: "auto",
			wantNil:    true,
			wantChoice: "",
		},
		{
			name: "populated tools pass through",
			tools: []llm.ToolSchema{
				{Name: "write_file", Description: "write a file"},
			},
			toolChoice: "auto",
			wantNil:    false,
			wantChoice: "auto",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &llm.ChatRequest{
				Model:      "claude-3-5-sonnet-20241022",
				Messages:   []llm.Message{{Role: "user", Content: "hi"}},
				Tools:      tt.tools,
				ToolChoice: tt.toolChoice,
			}
			out, err := chain.Execute(context.Background(), req)
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, out.Tools)
			} else {
				assert.Equal(t, tt.tools, out.Tools)
			}
			assert.Equal(t, tt.wantChoice, out.ToolChoice)
		})
	}
}

func TestRewriterChain_RewritersRunInOrder(t *testing.T) {
	chain := middleware.NewRewriterChain()
	chain.AddRewriter(appendStop{"a"})
	chain.AddRewriter(appendStop{"b"})

	req := &llm.ChatRequest{
		Model:    "claude-3-5-sonnet-20241022",
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	}
	out, err := chain.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Stop)
	assert.Len(t, chain.GetRewriters(), 2)
}

type appendStop struct{ s string }

func (a appendStop) Name() string { return "append-stop-" + a.s }

func (a appendStop) Rewrite(_ context.Context, req *llm.ChatRequest) (*llm.ChatRequest, error) {
	req.Stop = append(req.Stop, a.s)
	return req, nil
}
