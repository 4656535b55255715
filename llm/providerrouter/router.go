// Package providerrouter presents one interface over N registered LLM
// provider adapters, with priority-ordered fallback, per-provider
// metrics, and unary/streaming generation.
package providerrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/superagent-run/superagent/internal/ctxkeys"
	"github.com/superagent-run/superagent/internal/metrics"
	"github.com/superagent-run/superagent/llm"
	llmcache "github.com/superagent-run/superagent/llm/cache"
	llmconfig "github.com/superagent-run/superagent/llm/config"
	"github.com/superagent-run/superagent/llm/observability"
	"github.com/superagent-run/superagent/llm/retry"
	"github.com/superagent-run/superagent/llm/streaming"
	"github.com/superagent-run/superagent/llm/tokenizer"
	"github.com/superagent-run/superagent/types"
)

var tracer = otel.Tracer("superagent/llm/providerrouter")

// Capability identifies an ability a provider's model must support for a
// request to route to it.
type Capability string

const (
	CapabilityChat Capability = "CHAT"
)

// ProviderConfig describes one registered provider adapter.
type ProviderConfig struct {
	Name       string
	APIKey     string
	BaseURL    string
	Models     []string
	Priority   int
	Enabled    bool
	Timeout    time.Duration
	MaxRetries int

	// RateSheet maps a model id to its per-1k-token input/output cost.
	RateSheet map[string]ModelRate
}

// ModelRate is the $/1k-token cost for a model, used by cost computation.
type ModelRate struct {
	InputCostPer1K  float64
	OutputCostPer1K float64
}

// ModelInfo describes a model's capabilities for get_model_info.
type ModelInfo struct {
	ID                 string
	Provider           string
	ContextWindow      int
	MaxOutputTokens    int
	SupportsStreaming  bool
	SupportsFunctions  bool
	SupportsVision     bool
	SupportsJSONMode   bool
	InputCostPer1K     float64
	OutputCostPer1K    float64
}

// ProviderMetrics are monotonic per-provider counters, updated under a
// lock.
type ProviderMetrics struct {
	mu           sync.Mutex
	Total        int64
	Successful   int64
	Failed       int64
	TotalTokens  int64
	TotalCost    float64
	AvgLatencyMs float64
	LastError    string
}

func (m *ProviderMetrics) recordSuccess(latency time.Duration, tokens int, cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Total++
	m.Successful++
	m.TotalTokens += int64(tokens)
	m.TotalCost += cost
	m.updateAvgLatency(latency)
}

func (m *ProviderMetrics) recordFailure(latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Total++
	m.Failed++
	if err != nil {
		m.LastError = err.Error()
	}
	m.updateAvgLatency(latency)
}

// updateAvgLatency keeps a running mean; caller holds m.mu.
func (m *ProviderMetrics) updateAvgLatency(latency time.Duration) {
	ms := float64(latency.Milliseconds())
	if m.Total <= 1 {
		m.AvgLatencyMs = ms
		return
	}
	m.AvgLatencyMs += (ms - m.AvgLatencyMs) / float64(m.Total)
}

// Snapshot returns a copy of the current metric values.
func (m *ProviderMetrics) Snapshot() ProviderMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ProviderMetrics{
		Total:        m.Total,
		Successful:   m.Successful,
		Failed:       m.Failed,
		TotalTokens:  m.TotalTokens,
		TotalCost:    m.TotalCost,
		AvgLatencyMs: m.AvgLatencyMs,
		LastError:    m.LastError,
	}
}

type registeredProvider struct {
	config   ProviderConfig
	adapter  llm.Provider
	metrics  *ProviderMetrics
}

// Router presents generate/stream/count_tokens/get_model_info over its
// registered providers. The zero value is not usable;
// construct with New.
type Router struct {
	mu          sync.RWMutex
	providers   map[string]*registeredProvider
	modelToProv map[string]string
	logger      *zap.Logger
	collector   *metrics.Collector
	policy      *llmconfig.PolicyManager
	costs       *observability.CostCalculator
	prompts     llmcache.PromptCache
}

// New creates an empty Router.
func New(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		providers:   make(map[string]*registeredProvider),
		modelToProv: make(map[string]string),
		logger:      logger.With(zap.String("component", "provider_router")),
	}
}

// SetMetricsCollector attaches the Prometheus collector used to record
// per-request LLM metrics. Unset (nil) Routers record nothing,
// the same opt-in shape as ux.Engine.SetPersister.
func (r *Router) SetMetricsCollector(c *metrics.Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collector = c
}

// SetPromptCache attaches a response cache consulted before any provider
// call. Only plain-chat requests are cached — a request carrying tools
// may trigger side effects, and streams are never cached. Unset (nil)
// Routers always call the provider.
func (r *Router) SetPromptCache(c llmcache.PromptCache) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = c
}

// SetCostCalculator attaches a price table consulted for models absent
// from their provider's RateSheet, so cost accounting survives a sparse
// per-provider config. Unset (nil) Routers price unknown models at 0.
func (r *Router) SetCostCalculator(c *observability.CostCalculator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.costs = c
}

// SetFallbackPolicy attaches a PolicyManager giving per-provider/model/
// error-code overrides for retry count and backoff, refining the
// fallback chain per error class rather than one global policy.
// Unset (nil) Routers use the flat retry.DefaultRetryPolicy for every
// error.
func (r *Router) SetFallbackPolicy(pm *llmconfig.PolicyManager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policy = pm
}

// Register adds a provider adapter under the given configuration. A model
// string maps to at most one registered provider; the first registration
// of a model wins unless the caller names a provider explicitly at call
// time. A "provider/model" prefix inside the model string is not parsed.
func (r *Router) Register(config ProviderConfig, adapter llm.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[config.Name] = &registeredProvider{
		config:  config,
		adapter: adapter,
		metrics: &ProviderMetrics{},
	}
	for _, m := range config.Models {
		if _, exists := r.modelToProv[m]; !exists {
			r.modelToProv[m] = config.Name
		}
	}
}

// Metrics returns a snapshot of a registered provider's metrics.
func (r *Router) Metrics(providerName string) (ProviderMetrics, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[providerName]
	if !ok {
		return ProviderMetrics{}, false
	}
	return p.metrics.Snapshot(), true
}

// resolveProvider resolves in a fixed order: explicit
// param, else map from model, else NoProviderForModel.
func (r *Router) resolveProvider(explicit, model string) (*registeredProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if explicit != "" {
		p, ok := r.providers[explicit]
		if !ok {
			return nil, types.NewError(types.ErrNoProviderForModel, fmt.Sprintf("provider %q not registered", explicit))
		}
		return p, nil
	}

	name, ok := r.modelToProv[model]
	if !ok {
		return nil, types.NewError(types.ErrNoProviderForModel, fmt.Sprintf("no provider registered for model %q", model))
	}
	return r.providers[name], nil
}

// fallbackChain returns the remaining enabled providers in descending
// priority order, excluding the one that just failed.
func (r *Router) fallbackChain(exclude string) []*registeredProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var chain []*registeredProvider
	for name, p := range r.providers {
		if name == exclude || !p.config.Enabled {
			continue
		}
		chain = append(chain, p)
	}
	sort.Slice(chain, func(i, j int) bool {
		return chain[i].config.Priority > chain[j].config.Priority
	})
	return chain
}

// Generate resolves a provider for req.Model (explicit param wins),
// invokes it with its configured timeout, and — on a retryable failure
// when enableFallback is true — retries through the remaining enabled
// providers in descending priority order. Each provider gets exactly one
// attempt in the fallback chain; retries never chain across more than
// N-1 fallback hops. Returns AllProvidersFailed carrying the last error
// if every candidate fails.
func (r *Router) Generate(ctx context.Context, req *llm.ChatRequest, explicitProvider string, enableFallback bool) (*llm.ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	prompts := r.prompts
	r.mu.RUnlock()

	cacheKey := ""
	if prompts != nil && len(req.Tools) == 0 && !req.Stream {
		cacheKey = prompts.GenerateKey(req)
		if entry, err := prompts.Get(ctx, cacheKey); err == nil {
			if resp := cachedChatResponse(entry); resp != nil {
				return resp, nil
			}
		}
	}

	resp, err := r.generate(ctx, req, explicitProvider, enableFallback)
	if err == nil && cacheKey != "" {
		if setErr := prompts.Set(ctx, cacheKey, &llmcache.CacheEntry{
			Response:    resp,
			TokensSaved: resp.Usage.TotalTokens,
			CreatedAt:   time.Now(),
		}); setErr != nil {
			r.logger.Warn("prompt cache write failed", zap.Error(setErr))
		}
	}
	return resp, err
}

// cachedChatResponse recovers a *llm.ChatResponse from a cache entry. The
// local tier holds the live pointer; the Redis tier round-trips through
// JSON and comes back as a generic map, so re-decode in that case.
func cachedChatResponse(entry *llmcache.CacheEntry) *llm.ChatResponse {
	if entry == nil || entry.Response == nil {
		return nil
	}
	if resp, ok := entry.Response.(*llm.ChatResponse); ok {
		return resp
	}
	raw, err := json.Marshal(entry.Response)
	if err != nil {
		return nil
	}
	var resp llm.ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil
	}
	return &resp
}

func (r *Router) generate(ctx context.Context, req *llm.ChatRequest, explicitProvider string, enableFallback bool) (*llm.ChatResponse, error) {
	primary, err := r.resolveProvider(explicitProvider, req.Model)
	if err != nil {
		return nil, err
	}

	resp, callErr := r.callWithRetry(ctx, primary, req)
	if callErr == nil {
		return resp, nil
	}
	lastErr := callErr

	if !enableFallback || !isRetryable(callErr) {
		return nil, lastErr
	}

	for _, candidate := range r.fallbackChain(primary.config.Name) {
		rewritten := *req
		if model, ok := firstModelForCapability(candidate.config, CapabilityChat); ok {
			rewritten.Model = model
		}
		resp, callErr = r.callWithRetry(ctx, candidate, &rewritten)
		if callErr == nil {
			return resp, nil
		}
		lastErr = callErr
		if !isRetryable(callErr) {
			break
		}
	}

	return nil, types.NewError(types.ErrAllProvidersFailed, "all providers failed").WithCause(lastErr)
}

func firstModelForCapability(config ProviderConfig, _ Capability) (string, bool) {
	if len(config.Models) == 0 {
		return "", false
	}
	return config.Models[0], true
}

// callWithRetry invokes one provider's Completion with exponential
// backoff for transient failures: default 3 attempts,
// base delay 1s, multiplier 2. Non-retryable errors short-circuit.
func (r *Router) callWithRetry(ctx context.Context, p *registeredProvider, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "providerrouter.provider_call",
		trace.WithAttributes(
			attribute.String("provider", p.config.Name),
			attribute.String("model", req.Model),
			attribute.String("correlation_id", req.TraceID),
		))
	defer span.End()

	ctx = ctxkeys.WithLLMModel(ctx, req.Model)

	retryPolicy := retry.DefaultRetryPolicy()
	if p.config.MaxRetries > 0 {
		retryPolicy.MaxRetries = p.config.MaxRetries
	}

	timeout := p.config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var resp *llm.ChatResponse
	start := time.Now()

	attempt := 0
	for {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		var err error
		resp, err = p.adapter.Completion(callCtx, req)
		cancel()

		if err == nil {
			r.logger.Debug("provider call succeeded",
				zap.String("provider", p.config.Name), zap.Int("attempt", attempt))
			cost := r.computeCost(p.config, req.Model, resp.Usage)
			latency := time.Since(start)
			p.metrics.recordSuccess(latency, resp.Usage.TotalTokens, cost)
			r.recordRequestMetrics(p.config.Name, req.Model, "success", latency, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, cost)
			span.SetAttributes(attribute.Int("attempt", attempt), attribute.Int64("total_tokens", int64(resp.Usage.TotalTokens)))
			span.SetStatus(codes.Ok, "")
			return resp, nil
		}

		if !r.shouldRetry(err, p.config.Name, req.Model, attempt, retryPolicy.MaxRetries) {
			latency := time.Since(start)
			p.metrics.recordFailure(latency, err)
			r.recordRequestMetrics(p.config.Name, req.Model, "error", latency, 0, 0, 0)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		backoff := r.retryDelay(err, p.config.Name, req.Model, attempt, retryPolicy)
		if backoff > retryPolicy.MaxDelay {
			backoff = retryPolicy.MaxDelay
		}
		select {
		case <-ctx.Done():
			p.metrics.recordFailure(time.Since(start), ctx.Err())
			r.recordRequestMetrics(p.config.Name, req.Model, "cancelled", time.Since(start), 0, 0, 0)
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, ctx.Err().Error())
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		attempt++
	}
}

// recordRequestMetrics forwards one completed attempt to the attached
// Prometheus collector, if any.
func (r *Router) recordRequestMetrics(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64) {
	r.mu.RLock()
	c := r.collector
	r.mu.RUnlock()
	if c == nil {
		return
	}
	c.RecordLLMRequest(provider, model, status, duration, promptTokens, completionTokens, cost)
}

// shouldRetry consults the attached fallback policy (if any) for a
// per-provider/model/error-code retry budget, falling back to the flat
// retry.DefaultRetryPolicy's MaxRetries when no policy is attached or no
// rule matches this error.
func (r *Router) shouldRetry(err error, provider, model string, attempt, defaultMaxRetries int) bool {
	if !isRetryable(err) {
		return false
	}
	r.mu.RLock()
	pm := r.policy
	r.mu.RUnlock()
	if pm == nil {
		return attempt < defaultMaxRetries
	}
	if e, ok := err.(*types.Error); ok {
		if policy := pm.FindPolicy(provider, model, llmconfig.ErrorCode(e.Code)); policy != nil {
			return pm.ShouldRetry(provider, model, llmconfig.ErrorCode(e.Code), attempt)
		}
	}
	return attempt < defaultMaxRetries
}

// retryDelay mirrors shouldRetry's policy-first lookup for backoff delay.
func (r *Router) retryDelay(err error, provider, model string, attempt int, fallback *retry.RetryPolicy) time.Duration {
	r.mu.RLock()
	pm := r.policy
	r.mu.RUnlock()
	if pm != nil {
		if e, ok := err.(*types.Error); ok {
			if policy := pm.FindPolicy(provider, model, llmconfig.ErrorCode(e.Code)); policy != nil {
				return time.Duration(pm.GetRetryDelay(provider, model, llmconfig.ErrorCode(e.Code), attempt)) * time.Millisecond
			}
		}
	}
	return time.Duration(float64(fallback.InitialDelay) * math.Pow(fallback.Multiplier, float64(attempt)))
}

func isRetryable(err error) bool {
	if e, ok := err.(*types.Error); ok {
		return e.Retryable
	}
	return false
}

// computeCost prices a request from the provider's rate sheet, falling
// back to the attached CostCalculator's price table; unknown models
// cost 0.
func (r *Router) computeCost(config ProviderConfig, model string, usage llm.ChatUsage) float64 {
	if rate, ok := config.RateSheet[model]; ok {
		return (float64(usage.PromptTokens)/1000)*rate.InputCostPer1K + (float64(usage.CompletionTokens)/1000)*rate.OutputCostPer1K
	}
	r.mu.RLock()
	calc := r.costs
	r.mu.RUnlock()
	if calc != nil {
		return calc.Calculate(config.Name, model, usage.PromptTokens, usage.CompletionTokens)
	}
	return 0
}

// Stream resolves a provider (no cross-provider fallback — mid-stream
// switching is not observable to callers) and returns its chunk channel.
// On successful termination it estimates tokens as
// ceil(wordcount(content)) when the provider does not report usage.
func (r *Router) Stream(ctx context.Context, req *llm.ChatRequest, explicitProvider string) (<-chan llm.StreamChunk, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := r.resolveProvider(explicitProvider, req.Model)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "providerrouter.provider_stream",
		trace.WithAttributes(
			attribute.String("provider", p.config.Name),
			attribute.String("model", req.Model),
			attribute.String("correlation_id", req.TraceID),
		))

	ctx = ctxkeys.WithLLMModel(ctx, req.Model)

	raw, err := p.adapter.Stream(ctx, req)
	if err != nil {
		p.metrics.recordFailure(0, err)
		r.recordRequestMetrics(p.config.Name, req.Model, "error", 0, 0, 0, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}

	// bp absorbs bursts from a fast provider against a slow NDJSON
	// consumer (the headless protocol writes one stdout line per
	// chunk). It uses the default Block policy: once its 1024-token buffer
	// is full, Write waits for the caller to read, so a caller that stops
	// reading eventually stalls the loop that reads from the provider.
	bp := streaming.NewBackpressureStream(streaming.DefaultBackpressureConfig())

	out := make(chan llm.StreamChunk)
	go func() {
		defer bp.Close()
		defer span.End()
		start := time.Now()
		var wordCount int
		var sawUsage bool
		var lastUsage llm.ChatUsage
		var idx int
		for chunk := range raw {
			if chunk.Err != nil {
				latency := time.Since(start)
				p.metrics.recordFailure(latency, chunk.Err)
				r.recordRequestMetrics(p.config.Name, req.Model, "error", latency, 0, 0, 0)
				span.RecordError(chunk.Err)
				span.SetStatus(codes.Error, chunk.Err.Error())
				out <- chunk
				return
			}
			wordCount += len(splitWords(chunk.Delta.Content))
			if chunk.Usage != nil {
				sawUsage = true
				lastUsage = *chunk.Usage
			}
			if err := bp.Write(ctx, streaming.Token{Content: chunk.Delta.Content, Index: idx, Timestamp: time.Now(), Final: chunk.FinishReason != ""}); err != nil {
				return
			}
			idx++
		}
		tokens := wordCount
		if sawUsage {
			tokens = lastUsage.TotalTokens
		}
		cost := r.computeCost(p.config, req.Model, lastUsage)
		latency := time.Since(start)
		p.metrics.recordSuccess(latency, tokens, cost)
		r.recordRequestMetrics(p.config.Name, req.Model, "success", latency, lastUsage.PromptTokens, lastUsage.CompletionTokens, cost)
		span.SetAttributes(attribute.Int64("total_tokens", int64(tokens)), attribute.Int("buffer_dropped", int(bp.Stats().Dropped)))
		span.SetStatus(codes.Ok, "")
	}()

	go func() {
		defer close(out)
		for token := range bp.ReadChan() {
			out <- llm.StreamChunk{Delta: llm.Message{Content: token.Content}}
		}
	}()

	return out, nil
}

func splitWords(s string) []string {
	var words []string
	var cur []rune
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			if len(cur) > 0 {
				words = append(words, string(cur))
				cur = nil
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		words = append(words, string(cur))
	}
	return words
}

// CountTokens delegates to the tokenizer registered for model via
// llm/tokenizer. Models with no
// registered exact tokenizer fall back to llm/tokenizer's CJK-aware
// estimator; a tokenizer that errors falls back to
// ceil(len(text)/4).
func (r *Router) CountTokens(text, model string) int {
	tok := tokenizer.GetTokenizerOrEstimator(model)
	count, err := tok.CountTokens(text)
	if err != nil {
		r.logger.Warn("tokenizer count failed, using length estimate",
			zap.String("model", model), zap.Error(err))
		return (len(text) + 3) / 4
	}
	return count
}

// GetModelInfo returns capability metadata for a registered model. Limits
// and vision/JSON-mode support come from the adapter's own capability
// table when it implements llm.CapabilityReporter; adapters that do not
// report zero values for those fields.
func (r *Router) GetModelInfo(model string) (ModelInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.modelToProv[model]
	if !ok {
		return ModelInfo{}, types.NewError(types.ErrModelNotFound, fmt.Sprintf("model %q not registered", model))
	}
	p := r.providers[name]
	rate := p.config.RateSheet[model]
	info := ModelInfo{
		ID:                model,
		Provider:          name,
		SupportsStreaming: true,
		SupportsFunctions: p.adapter.SupportsNativeFunctionCalling(),
		InputCostPer1K:    rate.InputCostPer1K,
		OutputCostPer1K:   rate.OutputCostPer1K,
	}
	if cr, ok := p.adapter.(llm.CapabilityReporter); ok {
		if caps, found := cr.ModelCapabilities(model); found {
			info.ContextWindow = caps.ContextWindow
			info.MaxOutputTokens = caps.MaxOutputTokens
			info.SupportsVision = caps.SupportsVision
			info.SupportsJSONMode = caps.SupportsJSONMode
		}
	}
	return info, nil
}
