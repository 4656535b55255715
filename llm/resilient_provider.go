package llm

import (
	"context"

	"github.com/superagent-run/superagent/llm/circuitbreaker"
	"github.com/superagent-run/superagent/llm/retry"
	"go.uber.org/zap"
)

// ResilientProvider 具有弹性能力的 Provider 包装器
// 提供重试和熔断功能
// 遵循装饰器模式：增强原有 Provider 而不修改其代码
type ResilientProvider struct {
	provider       Provider                      // 底层 Provider
	retryer        retry.Retryer                 // 重试器
	circuitBreaker circuitbreaker.CircuitBreaker // 熔断器
	logger         *zap.Logger
}

// ResilientProviderConfig 弹性 Provider 配置
type ResilientProviderConfig struct {
	// EnableRetry 是否启用重试
	EnableRetry bool
	// RetryPolicy 重试策略
	RetryPolicy *retry.RetryPolicy

	// EnableCircuitBreaker 是否启用熔断器
	EnableCircuitBreaker bool
	// CircuitBreakerConfig 熔断器配置
	CircuitBreakerConfig *circuitbreaker.Config
}

// DefaultResilientProviderConfig 返回默认配置
func DefaultResilientProviderConfig() *ResilientProviderConfig {
	return &ResilientProviderConfig{
		EnableRetry:          true,
		RetryPolicy:          retry.DefaultRetryPolicy(),
		EnableCircuitBreaker: true,
		CircuitBreakerConfig: circuitbreaker.DefaultConfig(),
	}
}

// NewResilientProvider 创建具有弹性能力的 Provider
func NewResilientProvider(
	provider Provider,
	retryer retry.Retryer,
	breaker circuitbreaker.CircuitBreaker,
	config *ResilientProviderConfig,
	logger *zap.Logger,
) *ResilientProvider {
	if config == nil {
		config = DefaultResilientProviderConfig()
	}
	if !config.EnableRetry {
		retryer = nil
	}
	if !config.EnableCircuitBreaker {
		breaker = nil
	}

	return &ResilientProvider{
		provider:       provider,
		retryer:        retryer,
		circuitBreaker: breaker,
		logger:         logger,
	}
}

// Completion 实现 Provider.Completion
// 集成重试和熔断能力：两者都有时重试在外层，每次尝试都经过熔断器
func (rp *ResilientProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var resp *ChatResponse
	var err error

	callFn := func() error {
		resp, err = rp.provider.Completion(ctx, req)
		return err
	}

	switch {
	case rp.circuitBreaker != nil && rp.retryer != nil:
		err = rp.retryer.Do(ctx, func() error {
			return rp.circuitBreaker.Call(ctx, callFn)
		})
	case rp.circuitBreaker != nil:
		err = rp.circuitBreaker.Call(ctx, callFn)
	case rp.retryer != nil:
		err = rp.retryer.Do(ctx, callFn)
	default:
		err = callFn()
	}

	if err != nil {
		return nil, err
	}

	return resp, nil
}

// Stream 实现 Provider.Stream
// 注意：流式调用不启用重试（因为无法回放已消费的 SSE 流）
func (rp *ResilientProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	if rp.circuitBreaker != nil {
		if rp.circuitBreaker.State() == circuitbreaker.StateOpen {
			return nil, circuitbreaker.ErrCircuitOpen
		}
	}

	return rp.provider.Stream(ctx, req)
}

func (rp *ResilientProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return rp.provider.HealthCheck(ctx)
}

// Name 实现 Provider.Name
func (rp *ResilientProvider) Name() string {
	return rp.provider.Name()
}

// SupportsNativeFunctionCalling 实现 Provider.SupportsNativeFunctionCalling
// 委托给底层 Provider
func (rp *ResilientProvider) SupportsNativeFunctionCalling() bool {
	return rp.provider.SupportsNativeFunctionCalling()
}

// ListModels 实现 Provider.ListModels
// 委托给底层 Provider，不计入重试/熔断统计
func (rp *ResilientProvider) ListModels(ctx context.Context) ([]Model, error) {
	return rp.provider.ListModels(ctx)
}

// ModelCapabilities 委托给底层 Provider（若其实现 CapabilityReporter）
func (rp *ResilientProvider) ModelCapabilities(model string) (ModelCapabilities, bool) {
	if cr, ok := rp.provider.(CapabilityReporter); ok {
		return cr.ModelCapabilities(model)
	}
	return ModelCapabilities{}, false
}

// WrapProviderWithResilience 便捷函数：为 Provider 添加弹性能力
// 使用默认配置创建 ResilientProvider
func WrapProviderWithResilience(
	provider Provider,
	retryer retry.Retryer,
	breaker circuitbreaker.CircuitBreaker,
	logger *zap.Logger,
) Provider {
	return NewResilientProvider(
		provider,
		retryer,
		breaker,
		DefaultResilientProviderConfig(),
		logger,
	)
}

// NewResilientProviderSimple 简化版构造函数
// 自动创建重试器和熔断器
func NewResilientProviderSimple(
	provider Provider,
	logger *zap.Logger,
) Provider {
	config := DefaultResilientProviderConfig()

	retryer := retry.NewBackoffRetryer(config.RetryPolicy, logger)
	breaker := circuitbreaker.NewCircuitBreaker(config.CircuitBreakerConfig, logger)

	return NewResilientProvider(
		provider,
		retryer,
		breaker,
		config,
		logger,
	)
}
