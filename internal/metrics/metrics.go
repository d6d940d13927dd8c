package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Analytics service metrics for production monitoring
var (
	// Engine metrics
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthtrack_analytics_operations_total",
			Help: "Total number of analytics operations",
		},
		[]string{"operation", "status"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthtrack_analytics_operation_duration_seconds",
			Help:    "Analytics operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"operation"},
	)

	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthtrack_anomalies_detected_total",
			Help: "Total number of anomalies flagged",
		},
		[]string{"metric", "method"}, // method: zscore/rolling
	)

	RiskClassifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthtrack_risk_classifications_total",
			Help: "Total number of risk classifications by band",
		},
		[]string{"kind", "level"},
	)

	// Ingestion metrics
	SamplesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthtrack_samples_ingested_total",
			Help: "Total number of daily samples written",
		},
		[]string{"metric"},
	)

	// Notification metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthtrack_notifications_sent_total",
			Help: "Total number of notifications published",
		},
		[]string{"kind", "severity"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "healthtrack_websocket_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthtrack_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "code"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthtrack_http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)

// ObserveOperation records one engine operation outcome and its duration.
func ObserveOperation(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
