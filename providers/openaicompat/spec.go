// Package openaicompat 实现 OpenAI 兼容协议族(OpenAI、DeepSeek、Groq、
// SiliconFlow 等)的线格式适配:请求/响应转换、SSE 增量事件转换,
// 以及网关模式下的反向序列化。
package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/BaSui01/unillm/llm"
	"github.com/BaSui01/unillm/providers"
	"github.com/BaSui01/unillm/types"
)

const (
	defaultBaseURL = "https://api.openai.com"
	defaultModel   = "gpt-4o-mini"
)

// Spec 是 OpenAI 兼容端点的协议描述,实现 llm.ProviderSpec。
type Spec struct {
	cfg providers.OpenAICompatConfig
	id  string
}

// New 创建 OpenAI 兼容协议描述。id 为空时使用 "openai"。
func New(cfg providers.OpenAICompatConfig) *Spec {
	return NewNamed("openai", cfg)
}

// NewNamed 以自定义 Provider 标识创建,用于 DeepSeek 等兼容厂商
// 共享同一线格式但希望在日志与指标中区分来源的场景。
func NewNamed(id string, cfg providers.OpenAICompatConfig) *Spec {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Spec{cfg: cfg, id: id}
}

func (s *Spec) ProviderID() string { return s.id }

// BuildHeaders 每次调用都重新读取凭据,保证 401 重建拿到新鲜令牌。
func (s *Spec) BuildHeaders(ctx context.Context) (http.Header, error) {
	h := make(http.Header)
	tok, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	h.Set("Authorization", "Bearer "+tok)
	if s.cfg.Organization != "" {
		h.Set("OpenAI-Organization", s.cfg.Organization)
	}
	return h, nil
}

func (s *Spec) token(ctx context.Context) (string, error) {
	if s.cfg.TokenProvider != nil {
		return s.cfg.TokenProvider.Token(ctx)
	}
	if s.cfg.APIKey == "" {
		return "", types.NewError(types.ErrConfiguration,
			fmt.Sprintf("provider %s: 未配置 api_key 或 token provider", s.id)).
			WithProvider(s.id)
	}
	return s.cfg.APIKey, nil
}

func (s *Spec) ChatURL(_ *llm.ChatRequest, _ bool) string {
	return s.cfg.BaseURL + "/v1/chat/completions"
}

func (s *Spec) TransformRequest(req *llm.ChatRequest, stream bool) (any, error) {
	return buildChatBody(req, providers.ChooseModel(req, s.cfg.Model, defaultModel), stream)
}

func (s *Spec) TransformResponse(body []byte) (*llm.ChatResponse, error) {
	return parseChatResponse(s.id, body)
}

func (s *Spec) NewSSEConverter() llm.EventConverter { return newConverter(s.id) }

// NewJSONLConverter OpenAI 兼容端点不使用 JSONL 流。
func (s *Spec) NewJSONLConverter() llm.EventConverter { return nil }

// errEnvelope OpenAI 标准错误信封。
type errEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Param   string `json:"param"`
		Code    any    `json:"code"` // 字符串或数字,厂商间不统一
	} `json:"error"`
}

// ClassifyError 解析 OpenAI 错误信封。未知形状返回 nil,交给状态码启发式。
func (s *Spec) ClassifyError(status int, body []byte) error {
	var env errEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Message == "" {
		return nil
	}
	code := fmt.Sprintf("%v", env.Error.Code)
	msg := env.Error.Message

	base := func(c types.ErrorCode, retryable bool) *types.Error {
		e := types.NewError(c, msg).WithProvider(s.id).WithHTTPStatus(status).
			WithDetail("envelope_type", env.Error.Type)
		if retryable {
			e = e.WithRetryable(true)
		}
		return e
	}

	switch {
	case env.Error.Type == "insufficient_quota" || code == "insufficient_quota" ||
		code == "billing_hard_limit_reached":
		return base(types.ErrQuotaExceeded, false)
	case env.Error.Type == "authentication_error" || code == "invalid_api_key" ||
		code == "account_deactivated":
		return base(types.ErrAuthentication, false)
	case env.Error.Type == "rate_limit_error" || code == "rate_limit_exceeded":
		return base(types.ErrRateLimited, true)
	case code == "model_not_found":
		return base(types.ErrModelNotFound, false)
	case env.Error.Type == "invalid_request_error":
		return base(types.ErrInvalidRequest, false)
	case env.Error.Type == "server_error":
		return base(types.ErrUpstreamError, true)
	}
	return nil
}

var _ llm.ProviderSpec = (*Spec)(nil)
