package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_service_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_service_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	// Generation metrics
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_service_generations_total",
			Help: "Total generation requests",
		},
		[]string{"mode", "outcome"}, // mode: "blocking" | "streaming"; outcome: "ok" | "emergency" | "error"
	)

	EmergencyDetections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ai_service_emergency_detections_total",
			Help: "Messages short-circuited by the emergency detector",
		},
	)

	// Upstream metrics
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_service_upstream_latency_seconds",
			Help:    "Gemini call latency (whole stream lifetime for streaming)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_service_upstream_errors_total",
			Help: "Gemini failures by kind",
		},
		[]string{"kind"},
	)

	// Queue metrics
	QueueItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_service_queue_items_total",
			Help: "Queue items processed by workers",
		},
		[]string{"outcome"}, // "ok" | "error" | "malformed"
	)

	QueueStoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ai_service_queue_store_errors_total",
			Help: "Queue store failures that triggered backoff",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_service_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
