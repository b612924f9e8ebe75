package config

import "time"

// DefaultConfig 返回默认配置.
func DefaultConfig() *Config {
	return &Config{
		HTTP:      DefaultHTTPConfig(),
		Providers: DefaultProvidersConfig(),
		Retry:     map[string]RetryConfig{},
		Log:       DefaultLogConfig(),
	}
}

// DefaultHTTPConfig 返回默认 HTTP 配置.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:  120 * time.Second,
		Retry401: true,
	}
}

// DefaultProvidersConfig 返回默认提供者配置.
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com",
			Model:   "gpt-4o-mini",
		},
		Claude: ClaudeConfig{
			BaseURL: "https://api.anthropic.com",
			Model:   "claude-sonnet-4-20250514",
			Version: "2023-06-01",
		},
		Gemini: GeminiConfig{
			BaseURL: "https://generativelanguage.googleapis.com",
			Model:   "gemini-2.0-flash",
		},
	}
}

// DefaultLogConfig 返回默认日志配置.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stderr"},
	}
}
