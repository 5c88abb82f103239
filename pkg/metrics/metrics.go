package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Enrollment operation metrics
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollcore_operations_total",
			Help: "Total number of service operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrollcore_operation_duration_seconds",
			Help:    "Service operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Transaction metrics
	TransactionConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollcore_transaction_conflicts_total",
			Help: "Total number of optimistic transaction conflicts by operation",
		},
		[]string{"operation"},
	)

	TransactionAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrollcore_transaction_attempts",
			Help:    "Attempts needed per committed or abandoned transaction",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
		[]string{"operation"},
	)

	// Enrollment gauges, refreshed by the collector
	EnrollmentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "enrollcore_enrollments_total",
			Help: "Number of enrollment records by status",
		},
		[]string{"status"},
	)

	// Cache metrics
	StatsCacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollcore_stats_cache_requests_total",
			Help: "Course stats cache requests by result (hit, miss, error, stale)",
		},
		[]string{"result"},
	)

	// Reconciler metrics
	DriftDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollcore_drift_detected_total",
			Help: "Counter or index drift found by reconciliation, by kind",
		},
		[]string{"kind"},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enrollcore_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "enrollcore_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	// Scheduler metrics
	JobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollcore_job_runs_total",
			Help: "Scheduled job runs by job and result",
		},
		[]string{"job", "result"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollcore_api_requests_total",
			Help: "Total number of API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrollcore_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(TransactionConflicts)
	prometheus.MustRegister(TransactionAttempts)
	prometheus.MustRegister(EnrollmentsTotal)
	prometheus.MustRegister(StatsCacheRequests)
	prometheus.MustRegister(DriftDetected)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(JobRunsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
