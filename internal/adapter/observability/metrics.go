package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	MessagesConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_consumed_total",
			Help: "Broker messages consumed by queue and outcome (acked, rejected)",
		},
		[]string{"queue", "outcome"},
	)
	MessagesPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_published_total",
			Help: "Broker messages published by routing key",
		},
		[]string{"routing_key"},
	)
	ConsumerReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_reconnects_total",
			Help: "Consume-loop reconnect attempts by queue",
		},
		[]string{"queue"},
	)

	TaskStatusTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_status_total",
			Help: "Task status transitions by kind and status",
		},
		[]string{"kind", "status"},
	)

	StreamSubscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stream_subscribers",
			Help: "Active streaming RPC subscribers by stream",
		},
		[]string{"stream"},
	)

	KVCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kv_cache_hits_total",
			Help: "Read-cache hits in the KV wrapper",
		},
	)
	KVCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kv_cache_misses_total",
			Help: "Read-cache misses in the KV wrapper",
		},
	)

	ScaleEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoscaler_scale_events_total",
			Help: "Autoscaler scale events by service and direction",
		},
		[]string{"service", "direction"},
	)
)

var registerOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to
// call from every process entry point.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			MessagesConsumedTotal,
			MessagesPublishedTotal,
			ConsumerReconnectsTotal,
			TaskStatusTotal,
			StreamSubscribers,
			KVCacheHitsTotal,
			KVCacheMissesTotal,
			ScaleEventsTotal,
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware records request counters and latency per chi route.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
