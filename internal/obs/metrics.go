// Package obs provides internal observability plumbing (zap loggers and
// prometheus collectors). This package is internal and should not be
// imported by external projects.
package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 运行时指标收集器
type Collector struct {
	// 请求指标
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec

	// 重试指标
	retriesTotal    *prometheus.CounterVec
	rebuild401Total *prometheus.CounterVec

	// 流式指标
	streamEventsTotal *prometheus.CounterVec
	activeStreams     *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时注册到默认 Registry。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 请求计数
	c.requestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of provider requests",
		},
		[]string{"provider", "operation", "status"},
	)

	// 请求延迟
	c.requestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Provider request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "operation"},
	)

	// 错误计数（按统一错误码）
	c.errorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of classified errors",
		},
		[]string{"provider", "code"},
	)

	// 退避重试计数
	c.retriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of backoff retries",
		},
		[]string{"provider", "reason"},
	)

	// 401 重建计数
	c.rebuild401Total = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rebuild_total",
			Help:      "Total number of 401 header rebuilds",
		},
		[]string{"provider"},
	)

	// 流事件计数
	c.streamEventsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Total number of unified stream events emitted",
		},
		[]string{"provider", "type"},
	)

	// 活跃流数量
	c.activeStreams = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Number of currently open event streams",
		},
		[]string{"provider"},
	)

	return c
}

// RecordRequest 记录一次请求结果
func (c *Collector) RecordRequest(provider, operation, status string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(provider, operation, status).Inc()
	c.requestDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordError 记录一次分类后的错误
func (c *Collector) RecordError(provider, code string) {
	c.errorsTotal.WithLabelValues(provider, code).Inc()
}

// RecordRetry 记录一次退避重试
func (c *Collector) RecordRetry(provider, reason string) {
	c.retriesTotal.WithLabelValues(provider, reason).Inc()
}

// RecordRebuild401 记录一次 401 头重建
func (c *Collector) RecordRebuild401(provider string) {
	c.rebuild401Total.WithLabelValues(provider).Inc()
}

// RecordStreamEvent 记录一个统一流事件
func (c *Collector) RecordStreamEvent(provider, eventType string) {
	c.streamEventsTotal.WithLabelValues(provider, eventType).Inc()
}

// StreamOpened 活跃流 +1
func (c *Collector) StreamOpened(provider string) {
	c.activeStreams.WithLabelValues(provider).Inc()
}

// StreamClosed 活跃流 -1
func (c *Collector) StreamClosed(provider string) {
	c.activeStreams.WithLabelValues(provider).Dec()
}
