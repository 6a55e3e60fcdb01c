package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_http_requests_total",
			Help: "Total number of HTTP requests processed by the sync service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_fetches_total",
			Help: "Total number of paginated log fetches by direction and outcome.",
		},
		[]string{"direction", "outcome"},
	)
	postsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_posts_total",
			Help: "Total number of optimistic message posts by outcome.",
		},
		[]string{"outcome"},
	)
	markReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_mark_reads_total",
			Help: "Total number of mark-as-read acknowledgments by outcome.",
		},
		[]string{"outcome"},
	)
	pushBufferedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_push_buffered_total",
			Help: "Total number of push deliveries parked in a pending buffer.",
		},
	)
	windowSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_window_size_messages",
			Help:    "Materialized window sizes observed after merges.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_ws_active_connections",
			Help: "Number of active websocket subscribers.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		fetchesTotal,
		postsTotal,
		markReadsTotal,
		pushBufferedTotal,
		windowSize,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncFetch(direction, outcome string) {
	fetchesTotal.WithLabelValues(direction, outcome).Inc()
}

func IncPost(outcome string) {
	postsTotal.WithLabelValues(outcome).Inc()
}

func IncMarkRead(outcome string) {
	markReadsTotal.WithLabelValues(outcome).Inc()
}

func IncPushBuffered() {
	pushBufferedTotal.Inc()
}

func ObserveWindowSize(size float64) {
	windowSize.Observe(size)
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
