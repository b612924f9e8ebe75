package providers

import (
	"time"

	"github.com/BaSui01/unillm/llm/auth"
)

// OpenAICompatConfig OpenAI 兼容 Provider 配置。
// 适用于 OpenAI 本身以及 DeepSeek、Groq、SiliconFlow 等兼容端点,
// 只需替换 BaseURL 即可复用同一套线格式。
type OpenAICompatConfig struct {
	APIKey       string        `json:"api_key" yaml:"api_key"`
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	Organization string        `json:"organization,omitempty" yaml:"organization,omitempty"`
	Model        string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// TokenProvider 非空时优先于 APIKey,用于动态凭证(如网关代发令牌)。
	TokenProvider auth.TokenProvider `json:"-" yaml:"-"`
}

// ClaudeConfig Claude Provider 配置
type ClaudeConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Version string        `json:"version,omitempty" yaml:"version,omitempty"` // anthropic-version 头,默认 2023-06-01
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// GeminiConfig Gemini Provider 配置
type GeminiConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// TokenProvider 非空时改用 Bearer 认证(服务账号 / ADC),
	// 否则使用 x-goog-api-key 静态密钥。
	TokenProvider auth.TokenProvider `json:"-" yaml:"-"`
}
