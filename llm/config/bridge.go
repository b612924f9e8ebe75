package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/unillm/llm/auth"
	"github.com/BaSui01/unillm/llm/retry"
	"github.com/BaSui01/unillm/providers"
)

// OpenAIProviderConfig 将配置转换为 OpenAI 兼容提供者配置.
func (c *Config) OpenAIProviderConfig() providers.OpenAICompatConfig {
	return providers.OpenAICompatConfig{
		APIKey:       c.Providers.OpenAI.APIKey,
		BaseURL:      c.Providers.OpenAI.BaseURL,
		Organization: c.Providers.OpenAI.Organization,
		Model:        c.Providers.OpenAI.Model,
		Timeout:      c.HTTP.Timeout,
	}
}

// ClaudeProviderConfig 将配置转换为 Claude 提供者配置.
func (c *Config) ClaudeProviderConfig() providers.ClaudeConfig {
	return providers.ClaudeConfig{
		APIKey:  c.Providers.Claude.APIKey,
		BaseURL: c.Providers.Claude.BaseURL,
		Model:   c.Providers.Claude.Model,
		Version: c.Providers.Claude.Version,
		Timeout: c.HTTP.Timeout,
	}
}

// GeminiProviderConfig 将配置转换为 Gemini 提供者配置。
// 配置了服务账号凭证文件时构建 Bearer 认证的 TokenProvider。
func (c *Config) GeminiProviderConfig(logger *zap.Logger) (providers.GeminiConfig, error) {
	cfg := providers.GeminiConfig{
		APIKey:  c.Providers.Gemini.APIKey,
		BaseURL: c.Providers.Gemini.BaseURL,
		Model:   c.Providers.Gemini.Model,
		Timeout: c.HTTP.Timeout,
	}
	if path := c.Providers.Gemini.CredentialsFile; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read gemini credentials file: %w", err)
		}
		creds, err := auth.ParseServiceAccountJSON(data)
		if err != nil {
			return cfg, fmt.Errorf("parse gemini credentials: %w", err)
		}
		tp, err := auth.NewServiceAccountProvider(creds, nil, nil, logger)
		if err != nil {
			return cfg, fmt.Errorf("build gemini token provider: %w", err)
		}
		cfg.TokenProvider = tp
	}
	return cfg, nil
}

// PolicyTable 根据配置构建重试策略表。
// 未配置任何条目时返回内置默认表。
func (c *Config) PolicyTable() *retry.PolicyTable {
	table := retry.DefaultPolicyTable()
	for provider, r := range c.Retry {
		table.Set(provider, &retry.RetryPolicy{
			MaxRetries:   r.MaxRetries,
			InitialDelay: r.InitialDelay,
			MaxDelay:     r.MaxDelay,
			MaxElapsed:   r.MaxElapsed,
			Multiplier:   r.Multiplier,
			Jitter:       r.Jitter,
		})
	}
	return table
}
