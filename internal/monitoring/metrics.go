package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"roomgate/backend/internal/depgate"
	"roomgate/backend/internal/join"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 会议指标
	CodeAllocations *prometheus.CounterVec

	// 入会指标
	JoinOutcomes *prometheus.CounterVec

	// 外部依赖指标
	BreakerTrips       *prometheus.CounterVec
	DependencyOutcomes *prometheus.CounterVec
	InvitationsSent    *prometheus.CounterVec

	// 错误指标
	PanicsTotal prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics 在 reg 上注册监控指标
//
// reg 为空时使用独立的注册表，测试中可重复创建。
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "roomgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		CodeAllocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomgate_code_allocations_total",
				Help: "Numeric code allocations by result (ok, retried, exhausted)",
			},
			[]string{"result"},
		),

		JoinOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomgate_join_outcomes_total",
				Help: "Short-code join attempts by outcome",
			},
			[]string{"outcome"},
		),

		BreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomgate_breaker_trips_total",
				Help: "Number of times a breaker key transitioned to blocked",
			},
			[]string{"breaker"},
		),

		DependencyOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomgate_dependency_outcomes_total",
				Help: "Dependency gate decisions by dependency and outcome",
			},
			[]string{"dependency", "outcome"},
		),

		InvitationsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomgate_invitations_total",
				Help: "Invitation batches by result",
			},
			[]string{"result"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "roomgate_panics_total",
				Help: "Total number of recovered panics",
			},
		),

		gatherer: reg,
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordBreakerTrip 熔断器打开
func (m *Metrics) RecordBreakerTrip(name string) {
	m.BreakerTrips.WithLabelValues(name).Inc()
}

// RecordDependency 依赖门控判定
func (m *Metrics) RecordDependency(name string, outcome depgate.Outcome) {
	m.DependencyOutcomes.WithLabelValues(name, string(outcome)).Inc()
}

// RecordJoin 会议码入会结果
func (m *Metrics) RecordJoin(outcome join.Outcome) {
	m.JoinOutcomes.WithLabelValues(string(outcome)).Inc()
}

// RecordAllocation 拨入码分配结果
func (m *Metrics) RecordAllocation(result string) {
	m.CodeAllocations.WithLabelValues(result).Inc()
}

// RecordInvitation 邀请发送结果
func (m *Metrics) RecordInvitation(err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.InvitationsSent.WithLabelValues(result).Inc()
}

// RecordPanic 记录恢复的 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// HTTPHandler 返回 /metrics 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
