package unillm

import (
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/unillm/internal/obs"
	"github.com/BaSui01/unillm/llm/httpexec"
	"github.com/BaSui01/unillm/llm/retry"
	"github.com/BaSui01/unillm/llm/streaming"
)

type options struct {
	logger       *zap.Logger
	metrics      *obs.Collector
	httpClient   *http.Client
	interceptors []httpexec.Interceptor
	retryPolicy  *retry.RetryPolicy
	policies     *retry.PolicyTable
	retry401     bool
	limiter      *rate.Limiter
	buffer       streaming.BufferConfig
}

func newOptions(opts ...Option) *options {
	o := &options{
		logger:   zap.NewNop(),
		policies: retry.DefaultPolicyTable(),
		retry401: true,
		buffer:   streaming.DefaultBufferConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option 配置 Client。
type Option func(*options)

// WithLogger 设置结构化日志器。
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics 设置指标收集器。
func WithMetrics(m *obs.Collector) Option {
	return func(o *options) { o.metrics = m }
}

// WithHTTPClient 替换底层 HTTP 客户端(代理、超时、自定义 Transport)。
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithInterceptors 追加请求拦截器,按注册顺序执行。
func WithInterceptors(ics ...httpexec.Interceptor) Option {
	return func(o *options) { o.interceptors = append(o.interceptors, ics...) }
}

// WithRetryPolicy 指定重试策略,覆盖默认策略表。
func WithRetryPolicy(policy *retry.RetryPolicy) Option {
	return func(o *options) { o.retryPolicy = policy }
}

// WithPolicyTable 替换按 Provider 查找的重试策略表。
func WithPolicyTable(table *retry.PolicyTable) Option {
	return func(o *options) {
		if table != nil {
			o.policies = table
		}
	}
}

// WithRetry401 开关 401 单次重建重发,默认开启。
func WithRetry401(enabled bool) Option {
	return func(o *options) { o.retry401 = enabled }
}

// WithRateLimit 设置客户端限流门。
func WithRateLimit(limiter *rate.Limiter) Option {
	return func(o *options) { o.limiter = limiter }
}

// WithBuffer 配置流式事件缓冲(容量、水位、丢弃策略)。
func WithBuffer(cfg streaming.BufferConfig) Option {
	return func(o *options) { o.buffer = cfg }
}
