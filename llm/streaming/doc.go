// 版权所有 2024 SuperAgent Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 streaming 提供面向 LLM 流式输出场景的背压流控原语。

# 概述

在大语言模型的流式响应中，token 以高频增量方式到达。当生产者
（Provider 的 SSE 读取循环）快于消费者（NDJSON 输出或 UI 渲染）时，
本包的背压流在两者之间施加流控，避免无界缓冲。

# 核心接口

  - BackpressureStream — 带高/低水位线的背压流，支持 Block、DropOldest、
    DropNewest、Error 四种丢弃策略。
  - StreamMultiplexer — 将一个 BackpressureStream 扇出给多个消费者。
  - RateLimiter — 令牌桶速率限制器，支持阻塞等待。

# 主要能力

  - 背压控制：通过 HighWaterMark / LowWaterMark 自动暂停与恢复生产者。
  - 可观测：BackpressureStream.Stats() 暴露 produced/consumed/dropped 等指标。
  - 扇出：StreamMultiplexer 支持运行时动态添加消费者。
*/
package streaming
