// 版权所有 2026 UniLLM Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 embedding 提供统一的文本嵌入(Embedding)接口与多服务商实现,
用于将文本转换为向量表示以支持语义检索、分类与聚类等场景。

# 概述

不同嵌入服务商在 API 格式、认证方式与输入类型语义上存在差异。
本包通过 Provider 接口屏蔽这些差异,所有 HTTP 调用走统一执行引擎,
错误分类、401 重建与指标与聊天路径完全一致。

# 核心接口

  - Provider:统一嵌入接口,定义 Embed、EmbedQuery、EmbedDocuments 等方法。
  - EmbeddingRequest / EmbeddingResponse:标准化的请求与响应模型。
  - InputType:输入类型枚举,包括 query、document、classification、clustering 等。
  - BaseProvider:公共基类,封装执行引擎调用与批量辅助方法。

# 使用方式

	cfg := embedding.DefaultOpenAIConfig()
	cfg.APIKey = "sk-..."
	provider := embedding.NewOpenAIProvider(cfg)

	vec, err := provider.EmbedQuery(ctx, "搜索关键词")
	vecs, err := provider.EmbedDocuments(ctx, []string{"文档1", "文档2"})
*/
package embedding
