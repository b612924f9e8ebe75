package httpexec

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/unillm/llm/httpexec"

// LoggingInterceptor 用 zap 记录请求生命周期。
type LoggingInterceptor struct {
	BaseInterceptor
	Logger *zap.Logger
}

func (l *LoggingInterceptor) OnBeforeSend(_ context.Context, req *http.Request) error {
	l.Logger.Debug("发送请求",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.String("request_id", req.Header.Get("X-Request-ID")),
	)
	return nil
}

func (l *LoggingInterceptor) OnResponse(_ context.Context, resp *http.Response) error {
	l.Logger.Debug("收到响应",
		zap.Int("status", resp.StatusCode),
	)
	return nil
}

func (l *LoggingInterceptor) OnError(_ context.Context, err error) {
	l.Logger.Warn("请求失败", zap.Error(err))
}

func (l *LoggingInterceptor) OnRetry401(context.Context) {
	l.Logger.Info("401 重建请求头后重发")
}

// TracingInterceptor 为每次发送记录 OTel Span 事件。
// 宿主应用不配置 TracerProvider 时为 noop。
type TracingInterceptor struct {
	BaseInterceptor
	tracer oteltrace.Tracer
}

// NewTracingInterceptor 创建追踪拦截器。
func NewTracingInterceptor() *TracingInterceptor {
	return &TracingInterceptor{tracer: otel.Tracer(instrumentationName)}
}

func (t *TracingInterceptor) OnBeforeSend(ctx context.Context, req *http.Request) error {
	span := oteltrace.SpanFromContext(ctx)
	span.AddEvent("provider.request",
		oteltrace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.String()),
		))
	return nil
}

func (t *TracingInterceptor) OnResponse(ctx context.Context, resp *http.Response) error {
	span := oteltrace.SpanFromContext(ctx)
	span.AddEvent("provider.response",
		oteltrace.WithAttributes(attribute.Int("http.status_code", resp.StatusCode)))
	return nil
}

func (t *TracingInterceptor) OnError(ctx context.Context, err error) {
	span := oteltrace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
