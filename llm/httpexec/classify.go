package httpexec

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/BaSui01/unillm/types"
)

// 常见的请求 ID 响应头，便于排障时关联上游日志
var requestIDHeaders = []string{
	"x-request-id",
	"request-id",
	"x-amzn-requestid",
	"x-goog-request-id",
}

// ClassifyStatus 按状态码启发式分类错误。对任何输入都返回结构化错误。
// Provider 信封解析失败或缺失时作为兜底。
func ClassifyStatus(provider string, status int, header http.Header, body []byte) *types.Error {
	sample := bodySample(body)
	lower := strings.ToLower(sample)

	var err *types.Error
	switch {
	case status == http.StatusTooManyRequests:
		err = types.NewError(types.ErrRateLimited, "上游限流").WithRetryable(true)
		if ra := header.Get("Retry-After"); ra != "" {
			err = err.WithDetail("retry_after", ra)
		}
	case status == http.StatusUnauthorized:
		err = types.NewError(types.ErrAuthentication, "鉴权失败")
	case status == http.StatusNotFound:
		err = types.NewError(types.ErrModelNotFound, "资源不存在")
	case status == http.StatusRequestEntityTooLarge, status == http.StatusUnsupportedMediaType:
		err = types.NewError(types.ErrInvalidRequest, "请求体不被接受")
	case (status == http.StatusForbidden || status == http.StatusBadRequest) && looksLikeQuota(lower):
		err = types.NewError(types.ErrQuotaExceeded, "配额用尽")
	case looksLikeRateLimit(lower):
		err = types.NewError(types.ErrRateLimited, "上游限流").WithRetryable(true)
	case status == http.StatusForbidden:
		err = types.NewError(types.ErrAuthentication, "权限不足")
	case status == http.StatusBadRequest:
		err = types.NewError(types.ErrInvalidRequest, "请求参数错误")
	case status == 529:
		// Anthropic 专用的过载状态码
		err = types.NewError(types.ErrModelOverloaded, "模型过载").WithRetryable(true)
	case status >= 500:
		err = types.NewError(types.ErrUpstreamError, "上游服务错误").WithRetryable(true)
	default:
		err = types.NewError(types.ErrUpstreamError, "上游返回非预期状态")
	}

	err = err.WithHTTPStatus(status).WithProvider(provider)
	if sample != "" {
		err = err.WithDetail("body_sample", sample)
	}
	if id := extractRequestID(header); id != "" {
		err = err.WithRequestID(id)
	}
	return err
}

// ReadEnvelopeMessage 尝试从常见错误信封中提取 message 字段，
// 失败时返回截断后的原始响应体。
func ReadEnvelopeMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return bodySample(body)
}

func looksLikeQuota(lower string) bool {
	return strings.Contains(lower, "quota") ||
		strings.Contains(lower, "exceeded your current") ||
		strings.Contains(lower, "billing")
}

func looksLikeRateLimit(lower string) bool {
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "too many requests")
}

func extractRequestID(header http.Header) string {
	for _, h := range requestIDHeaders {
		if v := header.Get(h); v != "" {
			return v
		}
	}
	return ""
}

func bodySample(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > bodySampleLimit {
		return s[:bodySampleLimit]
	}
	return s
}
