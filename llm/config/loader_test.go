package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 120*time.Second, cfg.HTTP.Timeout)
	assert.True(t, cfg.HTTP.Retry401)
	assert.Equal(t, "https://api.openai.com", cfg.Providers.OpenAI.BaseURL)
	assert.Equal(t, "2023-06-01", cfg.Providers.Claude.Version)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoader_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  timeout: 30s
  rate_limit: 5
providers:
  openai:
    api_key: sk-yaml
    model: gpt-4o
  claude:
    api_key: ak-yaml
retry:
  openai:
    max_retries: 5
    initial_delay: 500ms
    multiplier: 2.0
    jitter: true
log:
  level: debug
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 5.0, cfg.HTTP.RateLimit)
	assert.Equal(t, "sk-yaml", cfg.Providers.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o", cfg.Providers.OpenAI.Model)
	assert.Equal(t, "ak-yaml", cfg.Providers.Claude.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)

	require.Contains(t, cfg.Retry, "openai")
	assert.Equal(t, 5, cfg.Retry["openai"].MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry["openai"].InitialDelay)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("UNILLM_PROVIDERS_OPENAI_API_KEY", "sk-env")
	t.Setenv("UNILLM_HTTP_TIMEOUT", "45s")
	t.Setenv("UNILLM_LOG_OUTPUT_PATHS", "stdout, /var/log/unillm.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.Providers.OpenAI.APIKey)
	assert.Equal(t, 45*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, []string{"stdout", "/var/log/unillm.log"}, cfg.Log.OutputPaths)
}

func TestLoader_Dotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path,
		[]byte("UNILLM_PROVIDERS_CLAUDE_API_KEY=ak-dotenv\n"), 0o600))

	cfg, err := NewLoader().WithDotenv(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "ak-dotenv", cfg.Providers.Claude.APIKey)

	os.Unsetenv("UNILLM_PROVIDERS_CLAUDE_API_KEY")
}

func TestLoader_EnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_PROVIDERS_GEMINI_API_KEY", "gk-env")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, "gk-env", cfg.Providers.Gemini.APIKey)
}

func TestLoader_Validator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error { return assert.AnError }).
		Load()
	require.Error(t, err)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.Providers.OpenAI.Model)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Log.Level = "verbose"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Retry = map[string]RetryConfig{"openai": {MaxRetries: -1}}
	require.Error(t, cfg.Validate())
}

func TestConfig_PolicyTable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry = map[string]RetryConfig{
		"openai": {MaxRetries: 7, InitialDelay: time.Second, Multiplier: 3.0},
	}

	table := cfg.PolicyTable()
	assert.Equal(t, 7, table.Lookup("openai").MaxRetries)
	// 未覆盖的提供者保留内置策略
	assert.Equal(t, 3, table.Lookup("claude").MaxRetries)
}

func TestConfig_ProviderConfigs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers.OpenAI.APIKey = "sk"
	cfg.Providers.OpenAI.Organization = "org-1"
	cfg.HTTP.Timeout = 10 * time.Second

	oa := cfg.OpenAIProviderConfig()
	assert.Equal(t, "sk", oa.APIKey)
	assert.Equal(t, "org-1", oa.Organization)
	assert.Equal(t, 10*time.Second, oa.Timeout)

	cl := cfg.ClaudeProviderConfig()
	assert.Equal(t, "2023-06-01", cl.Version)

	gm, err := cfg.GeminiProviderConfig(nil)
	require.NoError(t, err)
	assert.Nil(t, gm.TokenProvider)
}
