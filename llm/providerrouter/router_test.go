package providerrouter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"

	"github.com/superagent-run/superagent/llm"
	llmcache "github.com/superagent-run/superagent/llm/cache"
	"github.com/superagent-run/superagent/llm/observability"
	"github.com/superagent-run/superagent/llm/tokenizer"
	"github.com/superagent-run/superagent/types"
)

type erroringTokenizer struct{}

func (erroringTokenizer) CountTokens(string) (int, error)            { return 0, assert.AnError }
func (erroringTokenizer) CountMessages([]tokenizer.Message) (int, error) { return 0, assert.AnError }
func (erroringTokenizer) Encode(string) ([]int, error)                { return nil, assert.AnError }
func (erroringTokenizer) Decode([]int) (string, error)                { return "", assert.AnError }
func (erroringTokenizer) MaxTokens() int                              { return 0 }
func (erroringTokenizer) Name() string                                { return "erroring" }

type fakeAdapter struct {
	name         string
	completionFn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

func (f *fakeAdapter) Name() string                           { return f.name }
func (f *fakeAdapter) SupportsNativeFunctionCalling() bool     { return false }
func (f *fakeAdapter) ListModels(ctx context.Context) ([]llm.Model, error) { return nil, nil }
func (f *fakeAdapter) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}
func (f *fakeAdapter) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return f.completionFn(ctx, req)
}
func (f *fakeAdapter) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return nil, nil
}

// TestRouter_ProviderFallback: openai
// (priority 100) fails retryably, anthropic (priority 90) succeeds.
func TestRouter_ProviderFallback(t *testing.T) {
	router := New(nil)

	openai := &fakeAdapter{name: "openai", completionFn: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, types.NewError(types.ErrProviderError, "rate limited").WithRetryable(true)
	}}
	anthropic := &fakeAdapter{name: "anthropic", completionFn: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{
			Model:   req.Model,
			Choices: []llm.ChatChoice{{Message: llm.Message{Role: llm.RoleAssistant, Content: "OK"}}},
		}, nil
	}}

	router.Register(ProviderConfig{Name: "openai", Models: []string{"gpt-4"}, Priority: 100, Enabled: true, MaxRetries: 0}, openai)
	router.Register(ProviderConfig{Name: "anthropic", Models: []string{"claude-3"}, Priority: 90, Enabled: true, MaxRetries: 0}, anthropic)

	req := &llm.ChatRequest{Model: "gpt-4", Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}}
	resp, err := router.Generate(context.Background(), req, "", true)

	require.NoError(t, err)
	assert.Equal(t, "OK", resp.Choices[0].Message.Content)

	openaiMetrics, ok := router.Metrics("openai")
	require.True(t, ok)
	assert.EqualValues(t, 1, openaiMetrics.Failed)

	anthropicMetrics, ok := router.Metrics("anthropic")
	require.True(t, ok)
	assert.EqualValues(t, 1, anthropicMetrics.Successful)
}

func TestRouter_NonRetryableShortCircuits(t *testing.T) {
	router := New(nil)

	openai := &fakeAdapter{name: "openai", completionFn: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, types.NewError(types.ErrInvalidRequest, "bad request").WithRetryable(false)
	}}
	router.Register(ProviderConfig{Name: "openai", Models: []string{"gpt-4"}, Priority: 100, Enabled: true}, openai)

	req := &llm.ChatRequest{Model: "gpt-4", Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}}
	_, err := router.Generate(context.Background(), req, "", true)

	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestRouter_AllProvidersFailed(t *testing.T) {
	router := New(nil)

	failing := func(name string) *fakeAdapter {
		return &fakeAdapter{name: name, completionFn: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			return nil, types.NewError(types.ErrProviderError, "down").WithRetryable(true)
		}}
	}
	router.Register(ProviderConfig{Name: "a", Models: []string{"m1"}, Priority: 100, Enabled: true}, failing("a"))
	router.Register(ProviderConfig{Name: "b", Models: []string{"m2"}, Priority: 50, Enabled: true}, failing("b"))

	req := &llm.ChatRequest{Model: "m1", Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}}
	_, err := router.Generate(context.Background(), req, "", true)

	require.Error(t, err)
	assert.Equal(t, types.ErrAllProvidersFailed, types.GetErrorCode(err))
}

func TestRouter_EmptyMessagesRejected(t *testing.T) {
	router := New(nil)
	req := &llm.ChatRequest{Model: "gpt-4"}
	_, err := router.Generate(context.Background(), req, "", false)
	require.Error(t, err)
}

func TestRouter_CountTokensDelegatesToRegisteredTokenizer(t *testing.T) {
	router := New(nil)
	fake := tokenizer.NewEstimatorTokenizer("count-tokens-test-model", 0)
	tokenizer.RegisterTokenizer("count-tokens-test-model", fake)
	want, err := fake.CountTokens("abcdefghij")
	require.NoError(t, err)
	assert.Equal(t, want, router.CountTokens("abcdefghij", "count-tokens-test-model"))
}

func TestRouter_CountTokensFallsBackToLengthEstimateOnTokenizerError(t *testing.T) {
	router := New(nil)
	tokenizer.RegisterTokenizer("count-tokens-error-model", erroringTokenizer{})
	assert.Equal(t, 3, router.CountTokens("abcdefghij", "count-tokens-error-model"))
}

func TestRouter_PromptCacheServesRepeatRequests(t *testing.T) {
	router := New(nil)

	calls := 0
	adapter := &fakeAdapter{name: "claude", completionFn: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		calls++
		return &llm.ChatResponse{
			Model:   req.Model,
			Choices: []llm.ChatChoice{{Message: llm.Message{Role: llm.RoleAssistant, Content: "cached answer"}}},
		}, nil
	}}
	router.Register(ProviderConfig{Name: "claude", Models: []string{"claude-3"}, Priority: 100, Enabled: true}, adapter)

	cacheCfg := llmcache.DefaultCacheConfig()
	cacheCfg.EnableRedis = false
	router.SetPromptCache(llmcache.NewMultiLevelCache(nil, cacheCfg, zap.NewNop()))

	req := &llm.ChatRequest{Model: "claude-3", Messages: []llm.Message{{Role: llm.RoleUser, Content: "same question"}}}

	first, err := router.Generate(context.Background(), req, "", true)
	require.NoError(t, err)
	second, err := router.Generate(context.Background(), req, "", true)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "second identical request must be served from cache")
	assert.Equal(t, first.Choices[0].Message.Content, second.Choices[0].Message.Content)
}

func TestRouter_PromptCacheSkipsToolRequests(t *testing.T) {
	router := New(nil)

	calls := 0
	adapter := &fakeAdapter{name: "claude", completionFn: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		calls++
		return &llm.ChatResponse{Model: req.Model}, nil
	}}
	router.Register(ProviderConfig{Name: "claude", Models: []string{"claude-3"}, Priority: 100, Enabled: true}, adapter)

	cacheCfg := llmcache.DefaultCacheConfig()
	cacheCfg.EnableRedis = false
	router.SetPromptCache(llmcache.NewMultiLevelCache(nil, cacheCfg, zap.NewNop()))

	req := &llm.ChatRequest{
		Model:    "claude-3",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "use the tool"}},
		Tools:    []llm.ToolSchema{{Name: "write_file"}},
	}
	_, err := router.Generate(context.Background(), req, "", true)
	require.NoError(t, err)
	_, err = router.Generate(context.Background(), req, "", true)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "tool-bearing requests are never cached")
}

func TestRouter_CostCalculatorPricesUnlistedModels(t *testing.T) {
	router := New(nil)

	adapter := &fakeAdapter{name: "claude", completionFn: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{
			Model: req.Model,
			Usage: llm.ChatUsage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000},
		}, nil
	}}
	// No RateSheet on the provider config; pricing must come from the
	// calculator's built-in table.
	router.Register(ProviderConfig{Name: "claude", Models: []string{"claude-3-5-sonnet-20241022"}, Priority: 100, Enabled: true}, adapter)
	router.SetCostCalculator(observability.NewCostCalculator())

	req := &llm.ChatRequest{Model: "claude-3-5-sonnet-20241022", Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}}
	_, err := router.Generate(context.Background(), req, "", true)
	require.NoError(t, err)

	m, ok := router.Metrics("claude")
	require.True(t, ok)
	// 1k in at 0.003 + 1k out at 0.015.
	assert.InDelta(t, 0.018, m.TotalCost, 1e-9)
}

type capableAdapter struct {
	fakeAdapter
	caps map[string]llm.ModelCapabilities
}

func (c *capableAdapter) ModelCapabilities(model string) (llm.ModelCapabilities, bool) {
	got, ok := c.caps[model]
	return got, ok
}

func TestRouter_GetModelInfoReportsAdapterCapabilities(t *testing.T) {
	router := New(nil)

	adapter := &capableAdapter{
		fakeAdapter: fakeAdapter{name: "claude"},
		caps: map[string]llm.ModelCapabilities{
			"claude-3-5-sonnet-20241022": {
				ContextWindow:   200000,
				MaxOutputTokens: 8192,
				SupportsVision:  true,
			},
		},
	}
	router.Register(ProviderConfig{
		Name:     "claude",
		Models:   []string{"claude-3-5-sonnet-20241022"},
		Priority: 100,
		Enabled:  true,
		RateSheet: map[string]ModelRate{
			"claude-3-5-sonnet-20241022": {InputCostPer1K: 0.003, OutputCostPer1K: 0.015},
		},
	}, adapter)

	info, err := router.GetModelInfo("claude-3-5-sonnet-20241022")
	require.NoError(t, err)
	assert.Equal(t, "claude", info.Provider)
	assert.Equal(t, 200000, info.ContextWindow)
	assert.Equal(t, 8192, info.MaxOutputTokens)
	assert.True(t, info.SupportsVision)
	assert.False(t, info.SupportsJSONMode)
	assert.InDelta(t, 0.003, info.InputCostPer1K, 1e-12)

	_, err = router.GetModelInfo("never-registered")
	assert.Error(t, err)
}
