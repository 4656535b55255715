// Copyright 2024 SuperAgent Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package llm provides the unified LLM provider abstraction.

# Overview

The llm package defines the contract every provider adapter implements
and the request/response types shared across the execution core. Routing,
caching, retry, and observability live in subpackages; the root package
stays dependency-light so adapters and consumers can both import it.

# Provider Interface

The core Provider interface defines the contract for all LLM providers:

	type Provider interface {
	    Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	    Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
	    HealthCheck(ctx context.Context) (*HealthStatus, error)
	    Name() string
	    SupportsNativeFunctionCalling() bool
	    ListModels(ctx context.Context) ([]Model, error)
	}

Concrete adapters live under providers/ (a hand-rolled HTTP Claude
client, an official-SDK Claude client, and a Gemini client); the
providerrouter subpackage fronts any number of them with priority-ordered
fallback.

# Request Validation

ChatRequest is validated at construction: temperature must lie in [0,2],
top_p in [0,1], and the message list must be non-empty. Use
NewChatRequest for a validated value or call Validate before dispatch.

# Streaming

All providers stream through a channel of StreamChunk closed on
completion:

	stream, err := provider.Stream(ctx, req)
	if err != nil {
	    return err
	}
	for chunk := range stream {
	    if chunk.Err != nil {
	        break
	    }
	    fmt.Print(chunk.Delta.Content)
	}

Concatenating Delta.Content across a successful stream yields the same
text the unary Completion would have produced for an equivalent request.

# Resilience

ResilientProvider decorates any Provider with retry and circuit-breaker
behavior without modifying it:

	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(), logger)
	p := llm.NewResilientProvider(adapter, nil, breaker, nil, logger)

Streams are never retried; a replayed SSE stream would duplicate
already-consumed chunks.

# Error Handling

Errors carry a structured code (types.ErrorCode) with a Retryable flag.
Use IsRetryable to decide whether a failure is worth another attempt:

	if llm.IsRetryable(err) {
	    // fall back to the next provider
	}

See the subpackages for additional functionality:
  - llm/cache: multi-level prompt/response caching
  - llm/circuitbreaker: failure-rate circuit breaker
  - llm/config: per-provider/model/error fallback policies
  - llm/context: conversation-window budgeting and pruning
  - llm/embedding: embedding provider adapters
  - llm/middleware: request rewriter chain
  - llm/observability: cost accounting
  - llm/providerrouter: priority-ordered multi-provider routing
  - llm/retry: retry strategies and backoff
  - llm/streaming: backpressure for streamed tokens
  - llm/tokenizer: exact and estimated token counting
*/
package llm
