package speech

import (
	"go.uber.org/zap"

	"github.com/BaSui01/unillm/llm/httpexec"
)

// OpenAITTSConfig 配置 OpenAI TTS 提供者.
type OpenAITTSConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"` // tts-1 / tts-1-hd
	Voice   string `json:"voice,omitempty" yaml:"voice,omitempty"` // alloy, echo, ...

	Executor *httpexec.Executor `json:"-" yaml:"-"`
	Logger   *zap.Logger        `json:"-" yaml:"-"`
}

// OpenAISTTConfig 配置 OpenAI Whisper STT 提供者.
type OpenAISTTConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"` // whisper-1

	Executor *httpexec.Executor `json:"-" yaml:"-"`
	Logger   *zap.Logger        `json:"-" yaml:"-"`
}

// DefaultOpenAITTSConfig 返回默认 TTS 配置.
func DefaultOpenAITTSConfig() OpenAITTSConfig {
	return OpenAITTSConfig{
		BaseURL: "https://api.openai.com",
		Model:   "tts-1-hd",
		Voice:   "alloy",
	}
}

// DefaultOpenAISTTConfig 返回默认 STT 配置.
func DefaultOpenAISTTConfig() OpenAISTTConfig {
	return OpenAISTTConfig{
		BaseURL: "https://api.openai.com",
		Model:   "whisper-1",
	}
}
