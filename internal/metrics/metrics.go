package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payhook_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payhook_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payhook_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payhook_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	dbConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payhook_db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	dbConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payhook_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	webhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payhook_webhook_deliveries_total",
			Help: "Gateway notifications by provider and disposition",
		},
		[]string{"provider", "disposition"},
	)

	verificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payhook_verification_failures_total",
			Help: "Notifications rejected by the authenticity check",
		},
		[]string{"provider"},
	)

	conflictingOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payhook_conflicting_outcomes_total",
			Help: "Notifications contradicting an earlier applied outcome",
		},
		[]string{"provider"},
	)

	settlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payhook_settlement_duration_seconds",
			Help:    "Purchase store transition latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)

	hashesGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payhook_payment_hashes_generated_total",
			Help: "Outbound payment hashes generated",
		},
	)

	deliveriesPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payhook_deliveries_pruned_total",
			Help: "Audit records removed by retention pruning",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func IncrementInFlight() {
	httpRequestsInFlight.Inc()
}

func DecrementInFlight() {
	httpRequestsInFlight.Dec()
}

func UpdateDBStats(open, inUse, idle int) {
	dbConnectionsOpen.Set(float64(open))
	dbConnectionsInUse.Set(float64(inUse))
	dbConnectionsIdle.Set(float64(idle))
}

func RecordDelivery(provider, disposition string) {
	webhookDeliveries.WithLabelValues(provider, disposition).Inc()
}

func RecordVerificationFailure(provider string) {
	verificationFailures.WithLabelValues(provider).Inc()
}

func RecordConflict(provider string) {
	conflictingOutcomes.WithLabelValues(provider).Inc()
}

func RecordSettlement(status string, duration time.Duration) {
	settlementDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func RecordHashGenerated() {
	hashesGenerated.Inc()
}

func RecordPruned(n int64) {
	deliveriesPruned.Add(float64(n))
}
