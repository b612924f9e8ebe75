// 版权所有 2026 UniLLM Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 rerank 提供统一的文档重排提供者接口与 Cohere 实现。

# 使用方式

	p := rerank.NewCohereProvider(rerank.CohereConfig{APIKey: "..."})
	results, err := p.RerankSimple(ctx, "查询", []string{"文档一", "文档二"}, 2)
*/
package rerank
