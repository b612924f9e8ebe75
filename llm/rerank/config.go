package rerank

import (
	"go.uber.org/zap"

	"github.com/BaSui01/unillm/llm/httpexec"
)

// CohereConfig 配置 Cohere 重排提供者.
type CohereConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"` // rerank-v3.5

	Executor *httpexec.Executor `json:"-" yaml:"-"`
	Logger   *zap.Logger        `json:"-" yaml:"-"`
}

// DefaultCohereConfig 返回默认 Cohere 重排配置.
func DefaultCohereConfig() CohereConfig {
	return CohereConfig{
		BaseURL: "https://api.cohere.ai",
		Model:   "rerank-v3.5",
	}
}
