// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Check metrics
	ChecksTotal     *prometheus.CounterVec
	RecordsAccepted *prometheus.CounterVec
	RecordsRejected *prometheus.CounterVec
	CheckErrors     *prometheus.CounterVec

	// Source metrics
	FetchLatency    *prometheus.HistogramVec
	StreamUpdates   prometheus.Counter
	StreamDecodeErr prometheus.Counter

	// Feed metrics
	LastPublishTime *prometheus.GaugeVec
	ConfRatioBps    *prometheus.GaugeVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCheck prometheus.Gauge
	UptimeSeconds       prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pyth_price_guard"
	}

	return &Metrics{
		// Check metrics
		ChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "check",
			Name:      "runs_total",
			Help:      "Total number of feed checks by source",
		}, []string{"source"}),
		RecordsAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "check",
			Name:      "records_accepted_total",
			Help:      "Total number of accepted price records by feed",
		}, []string{"symbol"}),
		RecordsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "check",
			Name:      "records_rejected_total",
			Help:      "Total number of rejected observations by feed and reason",
		}, []string{"symbol", "reason"}),
		CheckErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "check",
			Name:      "errors_total",
			Help:      "Total number of non-validation check failures by source",
		}, []string{"source"}),

		// Source metrics
		FetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_latency_seconds",
			Help:      "Price fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		StreamUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "stream_updates_total",
			Help:      "Total number of account updates received over WebSocket",
		}),
		StreamDecodeErr: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "stream_decode_errors_total",
			Help:      "Total number of stream updates that failed to decode",
		}),

		// Feed metrics
		LastPublishTime: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "last_publish_time",
			Help:      "Publish time of the last accepted observation per feed",
		}, []string{"symbol"}),
		ConfRatioBps: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "conf_ratio_bps",
			Help:      "Confidence-to-price ratio of the last accepted observation in basis points",
		}, []string{"symbol"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulCheck: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_check_timestamp",
			Help:      "Unix timestamp of the last accepted check",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCheck increments the check counter for a source.
func RecordCheck(source string) {
	DefaultMetrics.ChecksTotal.WithLabelValues(source).Inc()
}

// RecordAccepted records an accepted observation.
func RecordAccepted(symbol string, publishTime int64, ratioBps uint64) {
	DefaultMetrics.RecordsAccepted.WithLabelValues(symbol).Inc()
	DefaultMetrics.LastPublishTime.WithLabelValues(symbol).Set(float64(publishTime))
	DefaultMetrics.ConfRatioBps.WithLabelValues(symbol).Set(float64(ratioBps))
	DefaultMetrics.LastSuccessfulCheck.Set(float64(publishTime))
}

// RecordRejected records a rejected observation.
func RecordRejected(symbol, reason string) {
	DefaultMetrics.RecordsRejected.WithLabelValues(symbol, reason).Inc()
}

// RecordCheckError records a non-validation check failure.
func RecordCheckError(source string) {
	DefaultMetrics.CheckErrors.WithLabelValues(source).Inc()
}

// RecordFetchLatency records price fetch latency for a source.
func RecordFetchLatency(source string, seconds float64) {
	DefaultMetrics.FetchLatency.WithLabelValues(source).Observe(seconds)
}

// RecordStreamUpdate increments the stream update counter.
func RecordStreamUpdate() {
	DefaultMetrics.StreamUpdates.Inc()
}

// RecordStreamDecodeError increments the stream decode error counter.
func RecordStreamDecodeError() {
	DefaultMetrics.StreamDecodeErr.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
