package image

import (
	"go.uber.org/zap"

	"github.com/BaSui01/unillm/llm/auth"
	"github.com/BaSui01/unillm/llm/httpexec"
)

// OpenAIConfig 配置 OpenAI 图像提供者.
type OpenAIConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"` // dall-e-3 / gpt-image-1

	Executor *httpexec.Executor `json:"-" yaml:"-"`
	Logger   *zap.Logger        `json:"-" yaml:"-"`
}

// GeminiConfig 配置 Gemini 图像提供者.
type GeminiConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"` // gemini-2.0-flash-preview-image-generation

	// TokenProvider 非空时改用 Bearer 认证(服务账号 / ADC)。
	TokenProvider auth.TokenProvider `json:"-" yaml:"-"`

	Executor *httpexec.Executor `json:"-" yaml:"-"`
	Logger   *zap.Logger        `json:"-" yaml:"-"`
}

// DefaultOpenAIConfig 返回默认 OpenAI 图像配置.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL: "https://api.openai.com",
		Model:   "dall-e-3",
	}
}

// DefaultGeminiConfig 返回默认 Gemini 图像配置.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Model:   "gemini-2.0-flash-preview-image-generation",
	}
}
