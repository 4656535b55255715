// 版权所有 2024 SuperAgent Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 observability 提供 LLM 调用的成本核算能力。

# 概述

本包维护主流模型的价格表，按 Provider、Model 维度计算单次请求
的 Token 成本，并支持会话级汇总。Provider Router 在 provider 自身
的 RateSheet 未覆盖某个模型时，会兜底查询本包的价格表。

# 核心接口

  - CostCalculator：成本计算器，内置主流模型价格表，支持动态更新。
  - CostTracker：会话级成本追踪器，实时汇总 Token 与费用统计。

# 主要能力

  - 成本核算：内置 OpenAI、Claude、Gemini、Qwen、ERNIE、GLM 等
    模型价格，支持批量更新与会话级汇总。
  - 价格兜底：同一上游的不同 adapter（claude / claude-sdk）共享
    按模型名匹配的兜底价格。
*/
package observability
