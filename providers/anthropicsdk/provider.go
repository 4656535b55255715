// Package anthropicsdk implements llm.Provider on top of Anthropic's
// official Go client (github.com/anthropics/anthropic-sdk-go), as an
// alternative to the hand-rolled HTTP adapter in providers/anthropic. It
// exists for callers who want the SDK's request building, retries, and
// typed streaming events rather than the raw wire format.
package anthropicsdk

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/superagent-run/superagent/llm"
	"github.com/superagent-run/superagent/providers"
	"github.com/superagent-run/superagent/types"
)

// messagesClient captures the subset of *sdk.MessageService this adapter
// calls, so tests can substitute a fake without standing up a real client.
type messagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Provider adapts the official Anthropic SDK to llm.Provider.
type Provider struct {
	msg          messagesClient
	defaultModel string
	cfg          providers.ClaudeConfig
}

// New builds a Provider from Claude configuration, constructing the SDK
// client directly from cfg.APIKey/cfg.BaseURL. cfg.Timeout is enforced by
// the caller through ctx, matching how the rest of this codebase threads
// deadlines rather than configuring them on the client itself.
func New(cfg providers.ClaudeConfig) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := sdk.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}
	return &Provider{msg: &client.Messages, defaultModel: model, cfg: cfg}
}

func (p *Provider) Name() string { return "claude-sdk" }

func (p *Provider) SupportsNativeFunctionCalling() bool { return true }

// ModelCapabilities reports the Claude family's limits for model.
func (p *Provider) ModelCapabilities(model string) (llm.ModelCapabilities, bool) {
	return providers.ClaudeModelCapabilities(model)
}

// HealthCheck issues a minimal completion request since the SDK does not
// expose a dedicated health endpoint; a non-error round trip is enough to
// establish reachability and authentication.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	_, err := p.msg.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(p.defaultModel),
		MaxTokens: 1,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock("ping"))},
	})
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// ListModels is not exposed by the Messages service this adapter wraps;
// providers/anthropic's HTTP-based ListModels covers GET /v1/models.
func (p *Provider) ListModels(ctx context.Context) ([]llm.Model, error) {
	return nil, nil
}

func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := p.msg.New(ctx, params)
	if err != nil {
		return nil, translateErr(err, p.Name())
	}
	return translateMessage(msg, p.Name())
}

func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	stream := p.msg.NewStreaming(ctx, params)
	out := make(chan llm.StreamChunk, 32)
	go runStream(ctx, stream, p.Name(), req.Model, out)
	return out, nil
}

func (p *Provider) buildParams(req *llm.ChatRequest) (sdk.MessageNewParams, error) {
	if err := req.Validate(); err != nil {
		return sdk.MessageNewParams{}, err
	}
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	msgs, system, err := encodeMessages(req.Messages)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	}
	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return sdk.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

// encodeMessages splits a flat message list into Anthropic's conversation
// turns plus a separate system block, mirroring how the Messages API
// requires system content outside the turn list.
func encodeMessages(msgs []types.Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	var system []sdk.TextBlockParam

	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
			continue
		}

		var blocks []sdk.ContentBlockParamUnion
		if m.Content != "" {
			blocks = append(blocks, sdk.NewTextBlock(m.Content))
		}
		for _, tc := range m.ToolCalls {
			var input map[string]any
			_ = jsonUnmarshal(tc.Arguments, &input)
			blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if m.Role == types.RoleTool {
			blocks = append(blocks, sdk.NewToolResultBlock(m.ToolCallID, m.Content, false))
		}
		if len(blocks) == 0 {
			continue
		}

		switch m.Role {
		case types.RoleUser, types.RoleTool:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case types.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, nil, fmt.Errorf("anthropicsdk: unsupported role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("anthropicsdk: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeTools(schemas []types.ToolSchema) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		var raw map[string]any
		if len(s.Parameters) > 0 {
			if err := jsonUnmarshal(s.Parameters, &raw); err != nil {
				return nil, fmt.Errorf("anthropicsdk: tool %q schema: %w", s.Name, err)
			}
		}
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: raw}, s.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(s.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func translateMessage(msg *sdk.Message, provider string) (*llm.ChatResponse, error) {
	if msg == nil {
		return nil, errors.New("anthropicsdk: nil response message")
	}
	out := types.Message{Role: types.RoleAssistant}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: jsonMarshal(block.Input),
			})
		}
	}
	return &llm.ChatResponse{
		ID:       msg.ID,
		Provider: provider,
		Model:    string(msg.Model),
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: string(msg.StopReason),
			Message:      out,
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		CreatedAt: time.Now(),
	}, nil
}

func translateErr(err error, provider string) error {
	if err == nil {
		return nil
	}
	return (&types.Error{Code: types.ErrUpstreamError, Message: err.Error(), Provider: provider, Retryable: true}).WithCause(err)
}
