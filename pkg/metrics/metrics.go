package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 投递结果
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Metrics 指标管理器，nil 时所有记录方法为空操作
type Metrics struct {
	registry *prometheus.Registry

	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 业务指标
	alertTransitions   *prometheus.CounterVec
	deliveries         *prometheus.CounterVec
	geocodes           *prometheus.CounterVec
	adminNotifications prometheus.Counter
}

// NewMetrics 创建指标管理器，使用独立的 Registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		alertTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sos_alert_transitions_total",
				Help: "SOS alert lifecycle transitions",
			},
			[]string{"transition"},
		),

		deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sos_deliveries_total",
				Help: "Emergency contact delivery attempts by outcome",
			},
			[]string{"outcome"},
		),

		geocodes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sos_geocode_total",
				Help: "Reverse geocoding lookups by outcome",
			},
			[]string{"outcome"},
		),

		adminNotifications: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sos_admin_notifications_total",
				Help: "In-app notifications written to administrators",
			},
		),
	}
}

// RecordHTTPRequest 记录HTTP请求
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTransition 记录告警状态流转，如 activated / cancelled / resolved
func (m *Metrics) RecordTransition(transition string) {
	if m == nil {
		return
	}
	m.alertTransitions.WithLabelValues(transition).Inc()
}

// RecordDelivery 记录一次联系人投递结果
func (m *Metrics) RecordDelivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

// RecordGeocode 记录一次地理编码结果
func (m *Metrics) RecordGeocode(outcome string) {
	if m == nil {
		return
	}
	m.geocodes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordAdminNotifications(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.adminNotifications.Add(float64(n))
}

// Registry 供测试读取
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics 端点
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinMiddleware 记录每个请求的次数和耗时，path 使用路由模板避免高基数
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
