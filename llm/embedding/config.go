package embedding

import (
	"go.uber.org/zap"

	"github.com/BaSui01/unillm/llm/auth"
	"github.com/BaSui01/unillm/llm/httpexec"
)

// OpenAIConfig 配置 OpenAI 兼容嵌入提供者.
type OpenAIConfig struct {
	APIKey     string `json:"api_key" yaml:"api_key"`
	BaseURL    string `json:"base_url" yaml:"base_url"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`           // text-embedding-3-large
	Dimensions int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"` // 256, 1024, 3072

	Executor *httpexec.Executor `json:"-" yaml:"-"`
	Logger   *zap.Logger        `json:"-" yaml:"-"`
}

// GeminiConfig 配置 Gemini 嵌入提供者.
type GeminiConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"` // gemini-embedding-001

	// TokenProvider 非空时改用 Bearer 认证(服务账号 / ADC)。
	TokenProvider auth.TokenProvider `json:"-" yaml:"-"`

	Executor *httpexec.Executor `json:"-" yaml:"-"`
	Logger   *zap.Logger        `json:"-" yaml:"-"`
}

// DefaultOpenAIConfig 返回默认 OpenAI 嵌入配置.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:    "https://api.openai.com",
		Model:      "text-embedding-3-large",
		Dimensions: 3072,
	}
}

// DefaultGeminiConfig 返回默认 Gemini 嵌入配置.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Model:   "gemini-embedding-001",
	}
}

// ChooseModel 按优先级选择模型:请求 > 配置 > 默认值。
func ChooseModel(reqModel, cfgModel, fallback string) string {
	if reqModel != "" {
		return reqModel
	}
	if cfgModel != "" {
		return cfgModel
	}
	return fallback
}
