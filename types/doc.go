// Copyright (c) SuperAgent Authors.
// Licensed under the MIT License.

/*
Package types 提供 SuperAgent 执行核心的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 llm、orchestrator、
executor、memory、ux 等上层模块提供统一的类型契约。所有跨包共享的
结构体、枚举和错误码均定义于此，以避免循环依赖。

# 核心类型

  - Message           — 对话消息（Role、Content、ToolCalls、Images）
  - ToolSchema        — 工具定义（name + description + JSON Schema parameters）
  - ToolCall / ToolOutput — 工具调用请求与执行结果
  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
  - Task / Plan / Step — 目标、计划与步骤（依赖 DAG + 并行组）
  - Priority          — 统一的任务优先级类型，注册时拒绝冲突定义
  - MemoryItem        — 统一记忆条目（short-term / working / long-term /
    episodic / semantic）
  - UnifiedContext / ContextNode — 上下文融合结果
  - TokenUsage        — Token 用量统计

# 主要能力

  - 错误工具链：IsRetryable / GetErrorCode
  - 错误构造：NewError，配合 WithCause / WithHTTPStatus / WithRetryable / WithProvider
  - 计划校验：Plan.Validate 保证依赖图无环且引用存在
*/
package types
