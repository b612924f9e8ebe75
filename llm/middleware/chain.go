package middleware

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/unillm/llm"
	"github.com/BaSui01/unillm/types"
)

// Handler 处理一个请求并返回一个响应.
type Handler func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

// Middleware 将处理器包裹并添加额外功能.
type Middleware func(next Handler) Handler

// Chain 表示中间件链.
type Chain struct {
	middlewares []Middleware
	mu          sync.RWMutex
}

// NewChain 创建新的中间件链.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{
		middlewares: middlewares,
	}
}

// Use 将中间件添加到链中.
func (c *Chain) Use(m Middleware) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, m)
	return c
}

// UseFront 在链的前部添加中间件.
func (c *Chain) UseFront(m Middleware) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append([]Middleware{m}, c.middlewares...)
	return c
}

// Then 用链中的所有中间件包裹一个处理器.
func (c *Chain) Then(h Handler) Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// 按倒序应用中间件
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// Len 返回链中的中间件数量.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.middlewares)
}

// 内置中间件

// LoggingMiddleware 记录请求/响应详情.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("middleware")
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			start := time.Now()
			logger.Debug("对话请求开始",
				zap.String("model", req.Model),
				zap.Int("messages", len(req.Messages)))

			resp, err := next(ctx, req)

			duration := time.Since(start)
			if err != nil {
				logger.Warn("对话请求失败",
					zap.String("model", req.Model),
					zap.Duration("duration", duration),
					zap.Error(err))
			} else {
				logger.Debug("对话请求完成",
					zap.String("model", req.Model),
					zap.Duration("duration", duration),
					zap.Int("total_tokens", resp.Usage.TotalTokens))
			}
			return resp, err
		}
	}
}

// TimeoutMiddleware 对请求添加超时.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// MetricsCollector 定义指标收集接口.
type MetricsCollector interface {
	RecordRequest(model string, duration time.Duration, success bool)
	RecordTokens(model string, tokens int)
}

// MetricsMiddleware 收集请求的指标.
func MetricsMiddleware(collector MetricsCollector) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)

			collector.RecordRequest(req.Model, duration, err == nil)
			if resp != nil {
				collector.RecordTokens(req.Model, resp.Usage.TotalTokens)
			}
			return resp, err
		}
	}
}

// HeadersMiddleware 添加自定义头到单请求附加头.
func HeadersMiddleware(headers map[string]string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			if req.Headers == nil {
				req.Headers = make(map[string]string)
			}
			for k, v := range headers {
				req.Headers[k] = v
			}
			return next(ctx, req)
		}
	}
}

// BlockingRateLimiter 定义阻塞式速率限制接口。超出速率时阻塞等待,
// *rate.Limiter 原生满足该接口。
type BlockingRateLimiter interface {
	Wait(ctx context.Context) error
}

// RateLimitMiddleware 应用速率限制.
func RateLimitMiddleware(limiter BlockingRateLimiter) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return next(ctx, req)
		}
	}
}

// RecoveryMiddleware 从 panic 中恢复.
func RecoveryMiddleware(onPanic func(any)) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llm.ChatRequest) (resp *llm.ChatResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					if onPanic != nil {
						onPanic(r)
					}
					err = types.NewError(types.ErrInternal, "请求处理发生 panic").
						WithDetail("panic", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// TracingMiddleware 添加分布式追踪.
func TracingMiddleware(tracer oteltrace.Tracer) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			ctx, span := tracer.Start(ctx, "llm.chat")
			defer span.End()

			span.SetAttributes(
				attribute.String("llm.model", req.Model),
				attribute.Int("llm.messages", len(req.Messages)),
			)

			resp, err := next(ctx, req)
			if err != nil {
				span.RecordError(err)
			} else if resp != nil {
				span.SetAttributes(attribute.Int("llm.total_tokens", resp.Usage.TotalTokens))
			}
			return resp, err
		}
	}
}

// Validator 定义请求验证接口.
type Validator interface {
	Validate(req *llm.ChatRequest) error
}

// ValidatorMiddleware 在处理前对请求进行验证.
func ValidatorMiddleware(validators ...Validator) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			for _, v := range validators {
				if err := v.Validate(req); err != nil {
					return nil, err
				}
			}
			return next(ctx, req)
		}
	}
}

// TransformMiddleware 转换请求/响应.
func TransformMiddleware(reqTransform func(*llm.ChatRequest), respTransform func(*llm.ChatResponse)) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			if reqTransform != nil {
				reqTransform(req)
			}
			resp, err := next(ctx, req)
			if err == nil && respTransform != nil {
				respTransform(resp)
			}
			return resp, err
		}
	}
}
