// 版权所有 2024 SuperAgent Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 middleware 提供 LLM 请求发送前的改写器链机制，用于在请求到达
上游模型服务之前插入可组合的参数清理与转换逻辑。

# 核心接口

  - RequestRewriter：请求改写器接口，包含 Rewrite 与 Name 方法。
  - RewriterChain：改写器链，按顺序执行多个 RequestRewriter，
    任何一个失败则中断并返回错误。

# 主要能力

  - 请求改写：EmptyToolsCleaner 在 tools 为空（nil 或空数组）时清除
    tool_choice，避免上游 API 拒绝请求；tools 本身不被修改。
  - 可扩展：通过 NewRewriterChain 或 AddRewriter 组合自定义改写器；
    providers/anthropic 适配器在发送请求前执行其改写器链。
*/
package middleware
