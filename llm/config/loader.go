package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 是运行时的完整配置结构.
type Config struct {
	// HTTP 执行引擎配置
	HTTP HTTPConfig `yaml:"http" env:"HTTP"`

	// Providers 各上游提供者配置
	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`

	// Retry 按提供者的重试策略
	Retry map[string]RetryConfig `yaml:"retry" env:"-"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`
}

// HTTPConfig HTTP 执行引擎配置.
type HTTPConfig struct {
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 收到 401 时是否重建凭证并重试一次
	Retry401 bool `yaml:"retry_401" env:"RETRY_401"`
	// 客户端限速,每秒请求数,0 表示不限
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
}

// ProvidersConfig 各提供者配置.
type ProvidersConfig struct {
	OpenAI OpenAIConfig `yaml:"openai" env:"OPENAI"`
	Claude ClaudeConfig `yaml:"claude" env:"CLAUDE"`
	Gemini GeminiConfig `yaml:"gemini" env:"GEMINI"`
}

// OpenAIConfig OpenAI 兼容提供者配置.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key" env:"API_KEY"`
	BaseURL      string `yaml:"base_url" env:"BASE_URL"`
	Organization string `yaml:"organization" env:"ORGANIZATION"`
	Model        string `yaml:"model" env:"MODEL"`
}

// ClaudeConfig Anthropic 提供者配置.
type ClaudeConfig struct {
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	Model   string `yaml:"model" env:"MODEL"`
	Version string `yaml:"version" env:"VERSION"`
}

// GeminiConfig Google 提供者配置.
type GeminiConfig struct {
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	Model   string `yaml:"model" env:"MODEL"`
	// 服务账号凭证 JSON 文件路径,配置后改用 Bearer 认证
	CredentialsFile string `yaml:"credentials_file" env:"CREDENTIALS_FILE"`
}

// RetryConfig 单个提供者的重试策略配置.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	MaxElapsed   time.Duration `yaml:"max_elapsed"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       bool          `yaml:"jitter"`
}

// LogConfig 日志配置.
type LogConfig struct {
	// 日志级别: debug / info / warn / error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json / console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// Loader 配置加载器(Builder 模式).
type Loader struct {
	configPath string
	dotenvPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "UNILLM",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置 YAML 配置文件路径.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithDotenv 设置 .env 凭证文件路径,在读取环境变量前先加载该文件。
// 已存在的环境变量不会被覆盖。
func (l *Loader) WithDotenv(path string) *Loader {
	l.dotenvPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置。优先级: 默认值 → YAML 文件 → .env → 环境变量.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if l.dotenvPath != "" {
		if err := godotenv.Load(l.dotenvPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load dotenv file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在,使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// loadFromEnv 从环境变量覆盖配置.
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

// setFieldValue 设置字段值.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// MustLoad 加载配置,失败时 panic.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置.
func (c *Config) Validate() error {
	var errs []string

	if c.HTTP.Timeout < 0 {
		errs = append(errs, "http timeout must not be negative")
	}
	if c.HTTP.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}
	for provider, r := range c.Retry {
		if r.MaxRetries < 0 {
			errs = append(errs, fmt.Sprintf("retry.%s.max_retries must not be negative", provider))
		}
		if r.Multiplier != 0 && r.Multiplier < 1 {
			errs = append(errs, fmt.Sprintf("retry.%s.multiplier must be >= 1", provider))
		}
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level: %s", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
