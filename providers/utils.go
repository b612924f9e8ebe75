package providers

import "github.com/BaSui01/unillm/llm"

// ChooseModel 按优先级选择模型:请求 > 配置 > Provider 默认值。
func ChooseModel(req *llm.ChatRequest, configModel string, defaultModel string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	if configModel != "" {
		return configModel
	}
	return defaultModel
}
