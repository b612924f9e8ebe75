// Package httpexec 是所有 Provider 请求共用的 HTTP 执行引擎。
// 每次逻辑请求按固定顺序执行：转换 → 解析 URL 与基础头 → 合并单请求头 →
// 前置拦截器 → 发送 → 401 单次重建重发 → 响应观察 → 错误分类。
package httpexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"github.com/BaSui01/unillm/internal/obs"
	"github.com/BaSui01/unillm/types"
)

// 错误响应体采样上限，避免把超大响应塞进错误信息
const bodySampleLimit = 200

// HeaderSource 构建基础请求头。401 重建时会被再次调用以读取新鲜凭据。
type HeaderSource interface {
	BuildHeaders(ctx context.Context) (http.Header, error)
}

// HeaderFunc 把函数适配为 HeaderSource。
type HeaderFunc func(ctx context.Context) (http.Header, error)

func (f HeaderFunc) BuildHeaders(ctx context.Context) (http.Header, error) { return f(ctx) }

// EnvelopeClassifier 解析 Provider 错误信封；无法识别时返回 nil，
// 引擎回退到状态码启发式。
type EnvelopeClassifier interface {
	ClassifyError(status int, body []byte) error
}

// Interceptor 在请求生命周期的固定点被按注册顺序调用。
type Interceptor interface {
	// OnBeforeSend 在发送前调用，返回错误则中止请求（不发送）。
	OnBeforeSend(ctx context.Context, req *http.Request) error
	// OnResponse 在成功响应后调用，返回错误则整个调用失败。
	OnResponse(ctx context.Context, resp *http.Response) error
	// OnError 在分类后的错误上调用，仅观察。
	OnError(ctx context.Context, err error)
	// OnRetry401 在 401 重建前调用，仅观察。
	OnRetry401(ctx context.Context)
	// OnSSEEvent 在流式响应的每个解码帧边界调用，仅观察，
	// 不得中止流。非流式请求不会触发。
	OnSSEEvent(ctx context.Context, event, data string)
}

// BaseInterceptor 提供全部空实现，嵌入后只需覆盖关心的钩子。
type BaseInterceptor struct{}

func (BaseInterceptor) OnBeforeSend(context.Context, *http.Request) error { return nil }
func (BaseInterceptor) OnResponse(context.Context, *http.Response) error  { return nil }
func (BaseInterceptor) OnError(context.Context, error)                    {}
func (BaseInterceptor) OnRetry401(context.Context)                        {}
func (BaseInterceptor) OnSSEEvent(context.Context, string, string)        {}

// Options 配置执行引擎。
type Options struct {
	Client       *http.Client
	Logger       *zap.Logger
	Metrics      *obs.Collector
	Interceptors []Interceptor
	// Retry401 开启 401 单次重建重发
	Retry401 bool
	// Limiter 可选的客户端限流门
	Limiter *rate.Limiter
}

// Executor 执行引擎。并发安全，可被多个 Provider 客户端共享。
type Executor struct {
	client       *http.Client
	logger       *zap.Logger
	metrics      *obs.Collector
	interceptors []Interceptor
	retry401     bool
	limiter      *rate.Limiter
}

// New 创建执行引擎。未提供 Client 时构建带 HTTP/2 调优的默认客户端。
func New(opts Options) *Executor {
	client := opts.Client
	if client == nil {
		transport := &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
		// 流式响应依赖 HTTP/2 的逐帧刷新
		_ = http2.ConfigureTransport(transport)
		client = &http.Client{Transport: transport}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		client:       client,
		logger:       logger.Named("httpexec"),
		metrics:      opts.Metrics,
		interceptors: opts.Interceptors,
		retry401:     opts.Retry401,
		limiter:      opts.Limiter,
	}
}

// Request 描述一次待执行的 HTTP 调用。
type Request struct {
	Provider    string // 指标与错误归因用
	Operation   string // chat/embedding/image/audio/rerank
	Method      string
	URL         string
	Body        []byte
	ContentType string
	// Headers 单请求附加头，与基础头冲突时覆盖基础头
	Headers map[string]string
	// HeaderSource 基础头来源，401 重建时重新调用
	HeaderSource HeaderSource
	// Classifier 可选的 Provider 错误信封解析器
	Classifier EnvelopeClassifier
	// Accept 流式请求由调用方置为 text/event-stream
	Accept string
}

// Response 是读尽后的响应。
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Execute 执行一次调用并读尽响应体。
// 401 重建最多发生一次；重试器的每次退避尝试各自获得新的重建额度。
func (e *Executor) Execute(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	resp, err := e.send(ctx, req)
	if err != nil {
		e.record(req, "error", start)
		return nil, err
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		err := types.NewError(types.ErrNetwork, "读取响应体失败").
			WithCause(readErr).
			WithProvider(req.Provider).
			WithRetryable(true)
		e.notifyError(ctx, err)
		e.record(req, "error", start)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := e.classify(req, resp, body)
		e.notifyError(ctx, err)
		e.record(req, fmt.Sprintf("%d", resp.StatusCode), start)
		return nil, err
	}

	// 成功响应观察者：失败会使整个调用失败
	for _, ic := range e.interceptors {
		if err := ic.OnResponse(ctx, resp); err != nil {
			e.notifyError(ctx, err)
			e.record(req, "interceptor_error", start)
			return nil, err
		}
	}

	e.record(req, "ok", start)
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// ExecuteStream 执行流式握手并返回未读取的响应。
// 401 额度仅在握手期有效：一旦开始消费响应体就不再有任何重试。
// 非 2xx 时读取错误体、分类并返回错误。
func (e *Executor) ExecuteStream(ctx context.Context, req *Request) (*http.Response, error) {
	if req.Accept == "" {
		req.Accept = "text/event-stream"
	}
	start := time.Now()
	resp, err := e.send(ctx, req)
	if err != nil {
		e.record(req, "error", start)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		cerr := e.classify(req, resp, body)
		e.notifyError(ctx, cerr)
		e.record(req, fmt.Sprintf("%d", resp.StatusCode), start)
		return nil, cerr
	}

	for _, ic := range e.interceptors {
		if err := ic.OnResponse(ctx, resp); err != nil {
			resp.Body.Close()
			e.notifyError(ctx, err)
			e.record(req, "interceptor_error", start)
			return nil, err
		}
	}

	e.record(req, "ok", start)
	return resp, nil
}

// Get 以 GET 执行，常用于模型列表等只读端点。
func (e *Executor) Get(ctx context.Context, req *Request) (*Response, error) {
	req.Method = http.MethodGet
	req.Body = nil
	return e.Execute(ctx, req)
}

// Delete 以 DELETE 执行。
func (e *Executor) Delete(ctx context.Context, req *Request) (*Response, error) {
	req.Method = http.MethodDelete
	req.Body = nil
	return e.Execute(ctx, req)
}

// MultipartFile 是 multipart 上传中的一个文件部分。
type MultipartFile struct {
	Field    string
	Filename string
	Data     []byte
}

// ExecuteMultipart 以 multipart/form-data 执行上传（语音转写等场景）。
func (e *Executor) ExecuteMultipart(ctx context.Context, req *Request, fields map[string]string, files []MultipartFile) (*Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "构建 multipart 表单失败").WithCause(err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "构建 multipart 文件失败").WithCause(err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "写入 multipart 文件失败").WithCause(err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "关闭 multipart 写入器失败").WithCause(err)
	}

	req.Method = http.MethodPost
	req.Body = buf.Bytes()
	req.ContentType = w.FormDataContentType()
	return e.Execute(ctx, req)
}

// send 完成构建 → 前置拦截 → 发送 → 401 单次重建的完整流程。
func (e *Executor) send(ctx context.Context, req *Request) (*http.Response, error) {
	httpReq, err := e.buildRequest(ctx, req)
	if err != nil {
		e.notifyError(ctx, err)
		return nil, err
	}

	// 前置拦截器可中止请求
	for _, ic := range e.interceptors {
		if err := ic.OnBeforeSend(ctx, httpReq); err != nil {
			e.notifyError(ctx, err)
			return nil, err
		}
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrTimeout, "等待限流令牌被取消").WithCause(err)
		}
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		nerr := e.wrapTransportError(ctx, req, err)
		e.notifyError(ctx, nerr)
		return nil, nerr
	}

	// 401 重建：每次逻辑请求最多一次
	if resp.StatusCode == http.StatusUnauthorized && e.retry401 && req.HeaderSource != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()

		e.logger.Debug("收到 401，重建请求头后重发一次",
			zap.String("provider", req.Provider),
			zap.String("url", req.URL),
		)
		for _, ic := range e.interceptors {
			ic.OnRetry401(ctx)
		}
		if e.metrics != nil {
			e.metrics.RecordRebuild401(req.Provider)
		}

		rebuilt, err := e.buildRequest(ctx, req)
		if err != nil {
			e.notifyError(ctx, err)
			return nil, err
		}
		for _, ic := range e.interceptors {
			if err := ic.OnBeforeSend(ctx, rebuilt); err != nil {
				e.notifyError(ctx, err)
				return nil, err
			}
		}
		resp, err = e.client.Do(rebuilt)
		if err != nil {
			nerr := e.wrapTransportError(ctx, req, err)
			e.notifyError(ctx, nerr)
			return nil, nerr
		}
	}

	return resp, nil
}

// buildRequest 构建请求：基础头 → 单请求头覆盖 → 请求 ID。
func (e *Executor) buildRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "构建 HTTP 请求失败").
			WithCause(err).
			WithProvider(req.Provider)
	}

	if req.HeaderSource != nil {
		base, err := req.HeaderSource.BuildHeaders(ctx)
		if err != nil {
			return nil, types.NewError(types.ErrAuthentication, "构建基础请求头失败").
				WithCause(err).
				WithProvider(req.Provider)
		}
		for k, vs := range base {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}
	}

	// 单请求头覆盖基础头
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	} else if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
		if req.Accept == "text/event-stream" {
			httpReq.Header.Set("Cache-Control", "no-cache")
		}
	}
	if httpReq.Header.Get("X-Request-ID") == "" {
		httpReq.Header.Set("X-Request-ID", uuid.NewString())
	}

	return httpReq, nil
}

func (e *Executor) wrapTransportError(ctx context.Context, req *Request, err error) error {
	code := types.ErrNetwork
	msg := "请求发送失败"
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		code = types.ErrTimeout
		msg = "请求超时"
	}
	return types.NewError(code, msg).
		WithCause(err).
		WithProvider(req.Provider).
		WithRetryable(ctx.Err() == nil)
}

// classify 对非 2xx 响应做完整分类：信封解析优先，状态码启发式兜底。
// 分类是全函数，任何输入都返回结构化错误，不会 panic。
func (e *Executor) classify(req *Request, resp *http.Response, body []byte) error {
	if req.Classifier != nil {
		if err := req.Classifier.ClassifyError(resp.StatusCode, body); err != nil {
			e.recordErrorCode(req.Provider, err)
			return err
		}
	}
	err := ClassifyStatus(req.Provider, resp.StatusCode, resp.Header, body)
	e.recordErrorCode(req.Provider, err)
	return err
}

// NotifySSEEvent 把一个解码后的流帧依注册顺序通知全部拦截器。
// 流水线在每个帧边界调用，观察失败不影响流本身。
func (e *Executor) NotifySSEEvent(ctx context.Context, event, data string) {
	for _, ic := range e.interceptors {
		ic.OnSSEEvent(ctx, event, data)
	}
}

func (e *Executor) notifyError(ctx context.Context, err error) {
	for _, ic := range e.interceptors {
		ic.OnError(ctx, err)
	}
}

func (e *Executor) record(req *Request, status string, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordRequest(req.Provider, req.Operation, status, time.Since(start))
	}
}

func (e *Executor) recordErrorCode(provider string, err error) {
	if e.metrics != nil {
		if code := types.GetErrorCode(err); code != "" {
			e.metrics.RecordError(provider, string(code))
		}
	}
}
