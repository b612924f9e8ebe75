// 版权所有 2026 UniLLM Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供统一的生成式 AI 接入层核心类型,包括 Provider 抽象、
统一消息与请求/响应模型、流式事件联合类型与 ProviderSpec 扩展点。

# 概述

本包目标是屏蔽不同模型服务商在接口、鉴权、错误语义和流式协议上的差异,
对上层业务暴露一致的请求与响应模型,降低多模型接入和切换成本。

# Provider 抽象

核心接口是 [Provider],包含补全、流式输出、健康检查与能力声明。
基于该接口,调用方可以在保持上层调用不变的前提下切换底层模型服务。

# ProviderSpec 扩展点

[ProviderSpec] 描述一个具体服务商的线格式:端点构造、请求/响应转换、
头构建、错误分类与流式转换器工厂。新服务商只需实现该接口即可接入
统一执行引擎与流式管线,无需修改核心代码。

# 流式事件

[StreamEvent] 是跨服务商统一的流式事件联合类型:stream_start、
content_delta、tool_call_delta、thinking_delta、usage_update、custom
与 stream_end。事件经 [StreamItem] 交付,管线内错误以带内形式出现
在同一通道上。

# 子包

  - httpexec:HTTP 执行引擎(拦截器、401 重建、错误分类)
  - streaming:SSE / JSONL 流式解码管线与可取消句柄
  - retry:指数退避与按服务商的策略表
  - auth:静态密钥、服务账号 JWT 与 ADC 凭证源
  - gateway:统一事件到服务商线格式的反向编码
  - embedding / image / speech / rerank:能力模块
  - middleware:请求处理中间件链
  - config:YAML + 环境变量配置加载
*/
package llm
