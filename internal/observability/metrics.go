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
	// Ledger metrics
	Operations      *prometheus.CounterVec
	OperationErrors *prometheus.CounterVec
	TransferVolume  *prometheus.CounterVec
	DailyUsed       *prometheus.GaugeVec
	Paused          prometheus.Gauge
	BreakerTrips    *prometheus.CounterVec

	// Journal metrics
	JournalAppendLatency prometheus.Histogram
	JournalSeq           prometheus.Gauge

	// Event metrics
	EventsPublished    *prometheus.CounterVec
	EventPublishErrors *prometheus.CounterVec
	StreamSubscribers  prometheus.Gauge

	// Relay metrics
	RelayRequestLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "bridge_ledger"
	}

	return &Metrics{
		// Ledger metrics
		Operations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by operation and status",
		}, []string{"op", "status"}),
		OperationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_errors_total",
			Help:      "Total number of rejected ledger operations by error kind",
		}, []string{"op", "kind"}),
		TransferVolume: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transfer_volume_total",
			Help:      "Total committed transfer volume in base units by operation and asset",
		}, []string{"op", "asset"}),
		DailyUsed: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "daily_used",
			Help:      "Volume reserved in the current daily window by asset",
		}, []string{"asset"}),
		Paused: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "paused",
			Help:      "1 if the ledger is paused",
		}),
		BreakerTrips: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "breaker_trips_total",
			Help:      "Total number of integrity breaker trips by caller",
		}, []string{"caller"}),

		// Journal metrics
		JournalAppendLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "append_latency_seconds",
			Help:      "Journal append latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		JournalSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "last_seq",
			Help:      "Highest committed journal sequence number",
		}),

		// Event metrics
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of events published by sink and type",
		}, []string{"sink", "type"}),
		EventPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_errors_total",
			Help:      "Total number of failed event publishes by sink",
		}, []string{"sink"}),
		StreamSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "stream_subscribers",
			Help:      "Number of connected event stream subscribers",
		}),

		// Relay metrics
		RelayRequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "request_latency_seconds",
			Help:      "Relay HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),

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
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOperation records the outcome of a ledger operation.
// kind is empty on success.
func RecordOperation(op, kind string) {
	if kind == "" {
		DefaultMetrics.Operations.WithLabelValues(op, "ok").Inc()
		return
	}
	DefaultMetrics.Operations.WithLabelValues(op, "error").Inc()
	DefaultMetrics.OperationErrors.WithLabelValues(op, kind).Inc()
}

// RecordTransfer adds committed volume for op on asset.
func RecordTransfer(op, asset string, amount uint64) {
	DefaultMetrics.TransferVolume.WithLabelValues(op, asset).Add(float64(amount))
}

// UpdateDailyUsed sets the daily usage gauge of asset.
func UpdateDailyUsed(asset string, used uint64) {
	DefaultMetrics.DailyUsed.WithLabelValues(asset).Set(float64(used))
}

// UpdatePaused sets the paused gauge.
func UpdatePaused(paused bool) {
	if paused {
		DefaultMetrics.Paused.Set(1)
		return
	}
	DefaultMetrics.Paused.Set(0)
}

// RecordBreakerTrip records an integrity breaker trip.
func RecordBreakerTrip(caller string) {
	DefaultMetrics.BreakerTrips.WithLabelValues(caller).Inc()
}

// RecordJournalAppend records append latency and the committed sequence number.
func RecordJournalAppend(seconds float64, seq uint64) {
	DefaultMetrics.JournalAppendLatency.Observe(seconds)
	if seq > 0 {
		DefaultMetrics.JournalSeq.Set(float64(seq))
	}
}

// RecordEventPublished records an event publish attempt.
func RecordEventPublished(sink, eventType string, err error) {
	if err != nil {
		DefaultMetrics.EventPublishErrors.WithLabelValues(sink).Inc()
		return
	}
	DefaultMetrics.EventsPublished.WithLabelValues(sink, eventType).Inc()
}

// UpdateStreamSubscribers sets the stream subscriber gauge.
func UpdateStreamSubscribers(n int) {
	DefaultMetrics.StreamSubscribers.Set(float64(n))
}

// RecordRelayRequest records relay HTTP request latency.
func RecordRelayRequest(route, code string, seconds float64) {
	DefaultMetrics.RelayRequestLatency.WithLabelValues(route, code).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
