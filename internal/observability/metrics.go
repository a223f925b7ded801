package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "insights"

// Outcome label values shared by the pipelines.
const (
	OutcomeOK               = "ok"
	OutcomeInsufficientData = "insufficient_data"
	OutcomeInvalidRequest   = "invalid_request"
	OutcomeError            = "error"
)

// Model cache event label values.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheEvict = "evict"
)

var (
	LoaderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "errors_total",
			Help:      "Backend failures swallowed by the transaction loader",
		},
		[]string{"backend"},
	)

	Detections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "anomaly",
			Name:      "detections_total",
			Help:      "Anomaly detection requests by outcome",
		},
		[]string{"outcome"},
	)

	AnomaliesFlagged = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "anomaly",
			Name:      "flagged_per_request",
			Help:      "Number of transactions flagged per detection request",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)

	Forecasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "requests_total",
			Help:      "Expense forecast requests by outcome",
		},
		[]string{"outcome"},
	)

	ModelCacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "model_cache_events_total",
			Help:      "Per-user model cache hits, misses and evictions",
		},
		[]string{"event"},
	)

	ModelCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "model_cache_users",
			Help:      "Number of users with a cached forecast model",
		},
	)

	ModelTrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "model_training_duration_seconds",
			Help:      "Time spent fitting a per-user forecast model",
			Buckets:   prometheus.DefBuckets,
		},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "request_duration_seconds",
			Help:      "End-to-end latency of insights requests, loading included",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)
