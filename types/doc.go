// Copyright (c) UniLLM Authors.
// Licensed under the MIT License.

/*
Package types 提供 UniLLM 运行时的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 llm、providers、
gateway 等上层模块提供统一的类型契约。跨包共享的错误码和
结构化错误均定义于此，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、
    Provider、RequestID 与结构化 Details

# 主要能力

  - 错误工具链：IsRetryable / GetErrorCode，支持 errors.As 链式解包
  - 流式构造：NewError(...).WithCause(...).WithHTTPStatus(...) 等
*/
package types
