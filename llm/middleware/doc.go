// 版权所有 2026 UniLLM Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 middleware 提供对话请求处理的中间件链机制,支持在请求发送到
上游模型服务之前和响应返回之后插入可组合的横切逻辑。

# 概述

本包采用经典的 Handler / Middleware 函数式组合模式,将日志、超时、
限流、追踪、用量估算等横切关注点从业务逻辑中解耦。同时提供
RequestRewriter 改写器链,用于在请求发送前进行参数清理与转换。

# 核心接口

  - Handler:func(ctx, *ChatRequest) (*ChatResponse, error),
    表示一个请求处理函数。
  - Middleware:func(Handler) Handler,表示一个中间件装饰器。
  - Chain:中间件链,支持 Use / UseFront / Then 组合与执行。
  - RequestRewriter:请求改写器接口,包含 Rewrite 与 Name 方法。
  - RewriterChain:改写器链,按顺序执行多个 RequestRewriter。
*/
package middleware
