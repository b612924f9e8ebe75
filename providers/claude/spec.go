// Package claude 实现 Anthropic Messages 协议的线格式适配。
package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/BaSui01/unillm/llm"
	"github.com/BaSui01/unillm/providers"
	"github.com/BaSui01/unillm/types"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	defaultModel   = "claude-3-5-sonnet-latest"
	defaultVersion = "2023-06-01"

	// Claude 要求 max_tokens 必填
	defaultMaxTokens = 4096
)

// Spec 是 Anthropic Messages API 的协议描述,实现 llm.ProviderSpec。
type Spec struct {
	cfg providers.ClaudeConfig
}

func New(cfg providers.ClaudeConfig) *Spec {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Version == "" {
		cfg.Version = defaultVersion
	}
	return &Spec{cfg: cfg}
}

func (s *Spec) ProviderID() string { return "claude" }

// BuildHeaders Claude 使用 x-api-key 而非 Bearer 认证。
func (s *Spec) BuildHeaders(_ context.Context) (http.Header, error) {
	if s.cfg.APIKey == "" {
		return nil, types.NewError(types.ErrConfiguration, "claude: 未配置 api_key").
			WithProvider(s.ProviderID())
	}
	h := make(http.Header)
	h.Set("x-api-key", s.cfg.APIKey)
	h.Set("anthropic-version", s.cfg.Version)
	return h, nil
}

func (s *Spec) ChatURL(_ *llm.ChatRequest, _ bool) string {
	return s.cfg.BaseURL + "/v1/messages"
}

func (s *Spec) TransformRequest(req *llm.ChatRequest, stream bool) (any, error) {
	return buildMessagesBody(req, providers.ChooseModel(req, s.cfg.Model, defaultModel), stream)
}

func (s *Spec) TransformResponse(body []byte) (*llm.ChatResponse, error) {
	return parseMessagesResponse(s.ProviderID(), body)
}

func (s *Spec) NewSSEConverter() llm.EventConverter { return newConverter(s.ProviderID()) }

// NewJSONLConverter Anthropic 不使用 JSONL 流。
func (s *Spec) NewJSONLConverter() llm.EventConverter { return nil }

// errEnvelope Anthropic 标准错误信封 {"type":"error","error":{"type","message"}}。
type errEnvelope struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ClassifyError 解析 Anthropic 错误信封。未知形状返回 nil。
func (s *Spec) ClassifyError(status int, body []byte) error {
	var env errEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Message == "" {
		return nil
	}
	msg := env.Error.Message
	base := func(c types.ErrorCode, retryable bool) *types.Error {
		e := types.NewError(c, msg).WithProvider(s.ProviderID()).WithHTTPStatus(status).
			WithDetail("envelope_type", env.Error.Type)
		if retryable {
			e = e.WithRetryable(true)
		}
		return e
	}

	switch env.Error.Type {
	case "overloaded_error":
		return base(types.ErrModelOverloaded, true)
	case "rate_limit_error":
		return base(types.ErrRateLimited, true)
	case "authentication_error", "permission_error":
		return base(types.ErrAuthentication, false)
	case "not_found_error":
		return base(types.ErrModelNotFound, false)
	case "invalid_request_error":
		return base(types.ErrInvalidRequest, false)
	case "api_error":
		return base(types.ErrUpstreamError, true)
	}
	return nil
}

var _ llm.ProviderSpec = (*Spec)(nil)
