// Package gemini 实现 Google Generative Language API 的线格式适配。
// 支持静态 API Key(x-goog-api-key)与动态令牌(服务账号 / ADC)两种认证。
package gemini

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
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.0-flash"
)

// Spec 是 Gemini generateContent API 的协议描述,实现 llm.ProviderSpec。
type Spec struct {
	cfg providers.GeminiConfig
}

func New(cfg providers.GeminiConfig) *Spec {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Spec{cfg: cfg}
}

func (s *Spec) ProviderID() string { return "gemini" }

// BuildHeaders 配置了 TokenProvider 时走 Bearer,否则用 x-goog-api-key。
func (s *Spec) BuildHeaders(ctx context.Context) (http.Header, error) {
	h := make(http.Header)
	if s.cfg.TokenProvider != nil {
		tok, err := s.cfg.TokenProvider.Token(ctx)
		if err != nil {
			return nil, err
		}
		h.Set("Authorization", "Bearer "+tok)
		return h, nil
	}
	if s.cfg.APIKey == "" {
		return nil, types.NewError(types.ErrConfiguration,
			"gemini: 未配置 api_key 或 token provider").WithProvider(s.ProviderID())
	}
	h.Set("x-goog-api-key", s.cfg.APIKey)
	return h, nil
}

// ChatURL 流式与非流式使用不同方法名,流式附加 alt=sse。
func (s *Spec) ChatURL(req *llm.ChatRequest, stream bool) string {
	model := providers.ChooseModel(req, s.cfg.Model, defaultModel)
	if stream {
		return fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", s.cfg.BaseURL, model)
	}
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent", s.cfg.BaseURL, model)
}

func (s *Spec) TransformRequest(req *llm.ChatRequest, _ bool) (any, error) {
	return buildGenerateBody(req)
}

func (s *Spec) TransformResponse(body []byte) (*llm.ChatResponse, error) {
	return parseGenerateResponse(s.ProviderID(), body)
}

func (s *Spec) NewSSEConverter() llm.EventConverter { return newConverter(s.ProviderID()) }

// NewJSONLConverter Gemini 不使用 JSONL 流。
func (s *Spec) NewJSONLConverter() llm.EventConverter { return nil }

// errEnvelope Google 标准错误信封 {"error":{"code","message","status"}}。
type errEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ClassifyError 解析 Google 错误信封。未知形状返回 nil。
func (s *Spec) ClassifyError(status int, body []byte) error {
	var env errEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Message == "" {
		return nil
	}
	msg := env.Error.Message
	base := func(c types.ErrorCode, retryable bool) *types.Error {
		e := types.NewError(c, msg).WithProvider(s.ProviderID()).WithHTTPStatus(status).
			WithDetail("envelope_status", env.Error.Status)
		if retryable {
			e = e.WithRetryable(true)
		}
		return e
	}

	switch env.Error.Status {
	case "RESOURCE_EXHAUSTED":
		// 配额与限流共用同一状态,按措辞区分
		if strings.Contains(strings.ToLower(msg), "quota") {
			return base(types.ErrQuotaExceeded, false)
		}
		return base(types.ErrRateLimited, true)
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return base(types.ErrAuthentication, false)
	case "NOT_FOUND":
		return base(types.ErrModelNotFound, false)
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION":
		return base(types.ErrInvalidRequest, false)
	case "UNAVAILABLE", "DEADLINE_EXCEEDED", "INTERNAL":
		return base(types.ErrUpstreamError, true)
	}
	return nil
}

var _ llm.ProviderSpec = (*Spec)(nil)
