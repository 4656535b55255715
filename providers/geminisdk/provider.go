// Package geminisdk implements llm.Provider on top of Google's official
// Go client for the Gemini API (google.golang.org/genai).
package geminisdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/superagent-run/superagent/llm"
	"github.com/superagent-run/superagent/providers"
	"github.com/superagent-run/superagent/types"
)

// Provider adapts google.golang.org/genai's GenerativeModel surface to
// llm.Provider.
type Provider struct {
	client       *genai.Client
	defaultModel string
}

// New builds a Provider against the Gemini Developer API using cfg.APIKey.
// Client construction needs its own context per the SDK's NewClient
// signature; callers that need a bounded startup should wrap the call.
func New(ctx context.Context, cfg providers.GeminiConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("geminisdk: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("geminisdk: new client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Provider{client: client, defaultModel: model}, nil
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) SupportsNativeFunctionCalling() bool { return true }

// ModelCapabilities reports the Gemini family's limits for model.
func (p *Provider) ModelCapabilities(model string) (llm.ModelCapabilities, bool) {
	return providers.GeminiModelCapabilities(model)
}

func (p *Provider) ListModels(ctx context.Context) ([]llm.Model, error) {
	return nil, nil
}

// HealthCheck issues a one-token generation since genai has no dedicated
// ping endpoint.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	_, err := p.client.Models.GenerateContent(ctx, p.defaultModel,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: "ping"}}}},
		&genai.GenerateContentConfig{MaxOutputTokens: 1},
	)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	contents, system := encodeMessages(req.Messages)
	config := buildConfig(req, system)

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, (&types.Error{Code: types.ErrUpstreamError, Message: err.Error(), Provider: p.Name(), Retryable: true}).WithCause(err)
	}
	return translateResponse(resp, p.Name(), model)
}

// Stream uses the SDK's iterator-based GenerateContentStream, forwarding
// one StreamChunk per response chunk: its text parts are concatenated and
// its function-call parts collected into that chunk's delta. Gemini's
// aggregation of multi-part thinking/tool-call turns (handled by Hector's
// StreamingAggregator) is intentionally not reproduced here; callers that
// need aggregated turns should use Completion instead.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	contents, system := encodeMessages(req.Messages)
	config := buildConfig(req, system)

	out := make(chan llm.StreamChunk, 32)
	go func() {
		defer close(out)
		for resp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				send(ctx, out, llm.StreamChunk{Err: &types.Error{Code: types.ErrUpstreamError, Message: err.Error(), Provider: p.Name()}})
				return
			}
			chunk, finish := chunkFromResponse(resp, p.Name(), model)
			if !send(ctx, out, chunk) {
				return
			}
			if finish {
				return
			}
		}
	}()
	return out, nil
}

func send(ctx context.Context, out chan<- llm.StreamChunk, chunk llm.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func encodeMessages(msgs []types.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var system *genai.Content
	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			if m.Content != "" {
				system = &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}}
			}
			continue
		}
		role := "user"
		if m.Role == types.RoleAssistant {
			role = "model"
		}
		var parts []*genai.Part
		if m.Content != "" {
			parts = append(parts, &genai.Part{Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal(tc.Arguments, &args)
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents, system
}

func buildConfig(req *llm.ChatRequest, system *genai.Content) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{SystemInstruction: system}
	if req.Temperature > 0 {
		t := req.Temperature
		config.Temperature = &t
	}
	if req.TopP > 0 {
		tp := req.TopP
		config.TopP = &tp
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Stop) > 0 {
		config.StopSequences = req.Stop
	}
	return config
}

func translateResponse(resp *genai.GenerateContentResponse, provider, model string) (*llm.ChatResponse, error) {
	if len(resp.Candidates) == 0 {
		return nil, errors.New("geminisdk: empty response")
	}
	candidate := resp.Candidates[0]
	out := types.Message{Role: types.RoleAssistant}
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				out.Content += part.Text
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				out.ToolCalls = append(out.ToolCalls, types.ToolCall{
					ID:        part.FunctionCall.ID,
					Name:      part.FunctionCall.Name,
					Arguments: args,
				})
			}
		}
	}
	usage := llm.ChatUsage{}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return &llm.ChatResponse{
		Provider: provider,
		Model:    model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: string(candidate.FinishReason),
			Message:      out,
		}},
		Usage:     usage,
		CreatedAt: time.Now(),
	}, nil
}

// chunkFromResponse flattens one streamed GenerateContentResponse into a
// single StreamChunk, reporting whether the candidate's finish reason
// closes the stream.
func chunkFromResponse(resp *genai.GenerateContentResponse, provider, model string) (llm.StreamChunk, bool) {
	chunk := llm.StreamChunk{Provider: provider, Model: model}
	if len(resp.Candidates) == 0 {
		return chunk, false
	}
	candidate := resp.Candidates[0]
	delta := types.Message{Role: types.RoleAssistant}
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				delta.Content += part.Text
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				delta.ToolCalls = append(delta.ToolCalls, types.ToolCall{
					ID:        part.FunctionCall.ID,
					Name:      part.FunctionCall.Name,
					Arguments: args,
				})
			}
		}
	}
	chunk.Delta = delta
	finished := candidate.FinishReason != ""
	if finished {
		chunk.FinishReason = string(candidate.FinishReason)
	}
	return chunk, finished
}
