package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record 方法对 nil 接收者安全。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 注册表指标
	agentsRegistered *prometheus.GaugeVec
	registryEvents   *prometheus.CounterVec

	// 发现与心跳指标
	discoveryRounds   *prometheus.CounterVec
	discoveryDuration *prometheus.HistogramVec
	discoveryFound    *prometheus.GaugeVec
	heartbeatsTotal   *prometheus.CounterVec

	// 协作指标
	coordinationsTotal   *prometheus.CounterVec
	coordinationDuration *prometheus.HistogramVec
	coordinationQuality  prometheus.Histogram
	activeSessions       prometheus.Gauge

	// Agent 间消息指标
	messagesTotal    *prometheus.CounterVec
	messageRoundTrip *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，指标注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 注册表指标
	c.agentsRegistered = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents_registered",
			Help:      "Number of registered agents by status",
		},
		[]string{"status"},
	)

	c.registryEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_events_total",
			Help:      "Total number of registry membership changes",
		},
		[]string{"type", "reason"},
	)

	// 发现与心跳指标
	c.discoveryRounds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_rounds_total",
			Help:      "Total number of discovery calls by path",
		},
		[]string{"path"},
	)

	c.discoveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discovery_duration_seconds",
			Help:      "Discovery duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"path"},
	)

	c.discoveryFound = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "discovery_last_found",
			Help:      "Agents found by the most recent discovery call",
		},
		[]string{"path"},
	)

	c.heartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Total number of heartbeats published",
		},
		[]string{"status"},
	)

	// 协作指标
	c.coordinationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coordinations_total",
			Help:      "Total number of coordination requests by outcome",
		},
		[]string{"status"},
	)

	c.coordinationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "coordination_duration_seconds",
			Help:      "Coordination duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	c.coordinationQuality = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "coordination_quality_score",
			Help:      "Quality score of completed coordinations",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		},
	)

	c.activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collaboration_sessions_active",
			Help:      "Number of active collaboration sessions",
		},
	)

	// Agent 间消息指标
	c.messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_messages_total",
			Help:      "Total number of agent-to-agent messages",
		},
		[]string{"kind", "status"},
	)

	c.messageRoundTrip = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_message_round_trip_seconds",
			Help:      "Agent message round-trip time in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"kind"},
	)

	return c
}

// =============================================================================
// 🌐 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🗂️ 注册表指标记录
// =============================================================================

// SetAgentCounts 记录在线/离线 Agent 数量
func (c *Collector) SetAgentCounts(online, offline int) {
	if c == nil {
		return
	}
	c.agentsRegistered.WithLabelValues("online").Set(float64(online))
	c.agentsRegistered.WithLabelValues("offline").Set(float64(offline))
}

// RecordRegistryEvent 记录注册、注销与驱逐事件
func (c *Collector) RecordRegistryEvent(eventType, reason string) {
	if c == nil {
		return
	}
	c.registryEvents.WithLabelValues(eventType, reason).Inc()
}

// =============================================================================
// 🔍 发现指标记录
// =============================================================================

// ObserveDiscovery 记录一次发现调用
func (c *Collector) ObserveDiscovery(path string, found int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.discoveryRounds.WithLabelValues(path).Inc()
	c.discoveryDuration.WithLabelValues(path).Observe(elapsed.Seconds())
	c.discoveryFound.WithLabelValues(path).Set(float64(found))
}

// ObserveHeartbeat 记录一次心跳发布
func (c *Collector) ObserveHeartbeat(agentID string, err error) {
	if c == nil {
		return
	}
	c.heartbeatsTotal.WithLabelValues(outcome(err == nil)).Inc()
}

// =============================================================================
// 🤝 协作指标记录
// =============================================================================

// RecordCoordination 记录一次协作请求
func (c *Collector) RecordCoordination(success bool, quality float64, duration time.Duration) {
	if c == nil {
		return
	}
	status := outcome(success)
	c.coordinationsTotal.WithLabelValues(status).Inc()
	c.coordinationDuration.WithLabelValues(status).Observe(duration.Seconds())
	if success {
		c.coordinationQuality.Observe(quality)
	}
}

// SetActiveSessions 记录活跃会话数
func (c *Collector) SetActiveSessions(n int) {
	if c == nil {
		return
	}
	c.activeSessions.Set(float64(n))
}

// RecordMessage 记录一条 Agent 间消息
func (c *Collector) RecordMessage(kind string, success bool, roundTrip time.Duration) {
	if c == nil {
		return
	}
	c.messagesTotal.WithLabelValues(kind, outcome(success)).Inc()
	if success {
		c.messageRoundTrip.WithLabelValues(kind).Observe(roundTrip.Seconds())
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
