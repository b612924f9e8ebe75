// Package unillm 是统一的生成式 AI 客户端运行时:一套请求/响应/事件类型,
// 加上可插拔的 Provider 协议描述。HTTP 执行、重试、401 重建、流式解码
// 等横切能力由运行时统一承担,Provider 只描述协议形状。
//
// 用法:
//
//	import "github.com/BaSui01/unillm"
//
//	client := unillm.OpenAI(providers.OpenAICompatConfig{APIKey: key})
//	resp, err := client.Completion(ctx, &llm.ChatRequest{...})
//
//	handle, err := client.Stream(ctx, &llm.ChatRequest{...})
//	for item := range handle.Events() { ... }
package unillm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/unillm/llm"
	"github.com/BaSui01/unillm/llm/httpexec"
	"github.com/BaSui01/unillm/llm/retry"
	"github.com/BaSui01/unillm/llm/streaming"
	"github.com/BaSui01/unillm/providers"
	"github.com/BaSui01/unillm/providers/claude"
	"github.com/BaSui01/unillm/providers/gemini"
	"github.com/BaSui01/unillm/providers/openaicompat"
	"github.com/BaSui01/unillm/types"
)

// Client 将一个 Provider 协议描述与执行引擎、重试器、流水线组装为
// 完整的 llm.Provider 实现。并发安全。
type Client struct {
	spec    llm.ProviderSpec
	exec    *httpexec.Executor
	retryer retry.Retryer
	logger  *zap.Logger
	opts    *options
}

// NewClient 组装客户端。未指定重试策略时按 Provider 查默认策略表。
func NewClient(spec llm.ProviderSpec, opts ...Option) *Client {
	o := newOptions(opts...)

	policy := o.retryPolicy
	if policy == nil {
		policy = o.policies.Lookup(spec.ProviderID())
	}

	return &Client{
		spec: spec,
		exec: httpexec.New(httpexec.Options{
			Client:       o.httpClient,
			Logger:       o.logger,
			Metrics:      o.metrics,
			Interceptors: o.interceptors,
			Retry401:     o.retry401,
			Limiter:      o.limiter,
		}),
		retryer: retry.NewBackoffRetryer(policy, o.logger),
		logger:  o.logger.Named("client"),
		opts:    o,
	}
}

// OpenAI 创建 OpenAI 客户端。
func OpenAI(cfg providers.OpenAICompatConfig, opts ...Option) *Client {
	return NewClient(openaicompat.New(cfg), opts...)
}

// OpenAICompatible 创建自定义标识的 OpenAI 兼容客户端(DeepSeek、Groq 等)。
func OpenAICompatible(id string, cfg providers.OpenAICompatConfig, opts ...Option) *Client {
	return NewClient(openaicompat.NewNamed(id, cfg), opts...)
}

// Claude 创建 Anthropic Claude 客户端。
func Claude(cfg providers.ClaudeConfig, opts ...Option) *Client {
	return NewClient(claude.New(cfg), opts...)
}

// Gemini 创建 Google Gemini 客户端。
func Gemini(cfg providers.GeminiConfig, opts ...Option) *Client {
	return NewClient(gemini.New(cfg), opts...)
}

func (c *Client) Name() string { return c.spec.ProviderID() }

func (c *Client) SupportsNativeFunctionCalling() bool { return true }

// Completion 发起同步聊天请求。可重试的失败按退避策略透明重试,
// 每次退避尝试各自获得一次 401 重建额度,调用方只看到最终结果。
func (c *Client) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	execReq, err := c.buildChatRequest(req, false)
	if err != nil {
		return nil, err
	}

	return retry.DoWithResultTyped(c.retryer, ctx, func() (*llm.ChatResponse, error) {
		resp, err := c.exec.Execute(ctx, execReq)
		if err != nil {
			return nil, err
		}
		out, err := c.spec.TransformResponse(resp.Body)
		if err != nil {
			return nil, err
		}
		if out.Provider == "" {
			out.Provider = c.spec.ProviderID()
		}
		return out, nil
	})
}

// Stream 发起流式聊天请求。握手(直到响应头)阶段参与重试;
// 响应体的第一个字节之后不再重试,解码错误以带内错误项下发。
func (c *Client) Stream(ctx context.Context, req *llm.ChatRequest) (*llm.StreamHandle, error) {
	sse := true
	if c.spec.NewSSEConverter() == nil {
		if c.spec.NewJSONLConverter() == nil {
			return nil, types.NewError(types.ErrUnsupported,
				fmt.Sprintf("provider %s 不支持流式输出", c.spec.ProviderID())).
				WithProvider(c.spec.ProviderID())
		}
		sse = false
	}

	execReq, err := c.buildChatRequest(req, true)
	if err != nil {
		return nil, err
	}

	resp, err := retry.DoWithResultTyped(c.retryer, ctx, func() (*http.Response, error) {
		return c.exec.ExecuteStream(ctx, execReq)
	})
	if err != nil {
		return nil, err
	}

	streamOpts := streaming.Options{
		Provider:      c.spec.ProviderID(),
		Logger:        c.opts.logger,
		Metrics:       c.opts.metrics,
		Buffer:        c.opts.buffer,
		FrameObserver: c.exec.NotifySSEEvent,
	}
	if rc, ok := c.spec.(llm.RemoteCanceler); ok {
		streamOpts.RemoteCancel = rc.CancelRemote
	}

	// 转换器有状态,每条流一个新实例
	if sse {
		return streaming.NewSSEStream(ctx, resp, c.spec.NewSSEConverter(), streamOpts), nil
	}
	return streaming.NewJSONLStream(ctx, resp, c.spec.NewJSONLConverter(), streamOpts), nil
}

// HealthCheck 用一次最小补全探测连通性与凭据有效性。
func (c *Client) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	_, err := c.Completion(ctx, &llm.ChatRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// buildChatRequest 转换请求并组装执行引擎的调用描述。
func (c *Client) buildChatRequest(req *llm.ChatRequest, stream bool) (*httpexec.Request, error) {
	if req == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "请求不能为空").
			WithProvider(c.spec.ProviderID())
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	wire, err := c.spec.TransformRequest(req, stream)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("序列化请求体失败: %v", err)).
			WithProvider(c.spec.ProviderID()).WithCause(err)
	}

	execReq := &httpexec.Request{
		Provider:     c.spec.ProviderID(),
		Operation:    "chat",
		Method:       http.MethodPost,
		URL:          c.spec.ChatURL(req, stream),
		Body:         payload,
		Headers:      req.Headers,
		HeaderSource: c.spec,
		Classifier:   c.spec,
	}
	return execReq, nil
}

var _ llm.Provider = (*Client)(nil)
