package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 指标管理器
type Metrics struct {
	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 派发指标
	dispatchAttempted *prometheus.CounterVec
	dispatchDelivered *prometheus.CounterVec
	dispatchFailed    *prometheus.CounterVec
	dispatchSkipped   *prometheus.CounterVec

	// 实时通道指标
	realtimeSubscribers *prometheus.GaugeVec
	realtimeDropped     *prometheus.CounterVec
}

// NewMetrics 创建指标管理器
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		dispatchAttempted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_push_attempted_total",
				Help: "Push deliveries attempted per alert type",
			},
			[]string{"alert_type"},
		),
		dispatchDelivered: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_push_delivered_total",
				Help: "Push deliveries that succeeded",
			},
			[]string{"alert_type"},
		),
		dispatchFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_push_failed_total",
				Help: "Push deliveries that failed",
			},
			[]string{"alert_type"},
		),
		dispatchSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_skipped_total",
				Help: "Dispatches suppressed by the idempotency ledger",
			},
			[]string{"alert_type"},
		),
		realtimeSubscribers: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "realtime_subscribers",
				Help: "Active realtime subscribers per topic kind",
			},
			[]string{"kind"},
		),
		realtimeDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_events_dropped_total",
				Help: "Events dropped on slow subscribers",
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) DispatchAttempted(alertType string) { m.dispatchAttempted.WithLabelValues(alertType).Inc() }
func (m *Metrics) DispatchDelivered(alertType string) { m.dispatchDelivered.WithLabelValues(alertType).Inc() }
func (m *Metrics) DispatchFailed(alertType string)    { m.dispatchFailed.WithLabelValues(alertType).Inc() }
func (m *Metrics) DispatchSkipped(alertType string)   { m.dispatchSkipped.WithLabelValues(alertType).Inc() }

func (m *Metrics) SubscriberJoined(kind string) { m.realtimeSubscribers.WithLabelValues(kind).Inc() }
func (m *Metrics) SubscriberLeft(kind string)   { m.realtimeSubscribers.WithLabelValues(kind).Dec() }
func (m *Metrics) EventDropped(kind string)     { m.realtimeDropped.WithLabelValues(kind).Inc() }

// GinMiddleware 记录 HTTP 指标
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
