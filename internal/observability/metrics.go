// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Placement metrics
	PlacementsTotal *prometheus.CounterVec
	ReconcileFixes  prometheus.Counter

	// Volume and matching metrics
	VolumePosted        prometheus.Counter
	MatchingPayouts     prometheus.Counter
	MatchingPaidAmount  prometheus.Counter
	MatchingNodesPerRun prometheus.Histogram

	// Career metrics
	CareerRewards      *prometheus.CounterVec
	CareerEvalFailures prometheus.Counter

	// Ledger metrics
	LedgerEntries  *prometheus.CounterVec
	LedgerRejected *prometheus.CounterVec

	// Concurrency metrics
	ConflictRetries *prometheus.CounterVec

	// Cycle metrics
	CycleRunsTotal *prometheus.CounterVec
	CycleDuration  *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on reg.
// A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "binary_comp"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		PlacementsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "placement",
			Name:      "placements_total",
			Help:      "Total number of placement attempts by outcome",
		}, []string{"outcome"}),
		ReconcileFixes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "placement",
			Name:      "reconcile_fixes_total",
			Help:      "Total number of nodes whose downline counts were corrected",
		}),

		VolumePosted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "volume_posted_total",
			Help:      "Total business volume posted",
		}),
		MatchingPayouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "payouts_total",
			Help:      "Total number of matching bonus payouts",
		}),
		MatchingPaidAmount: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "paid_amount_total",
			Help:      "Total matching bonus paid",
		}),
		MatchingNodesPerRun: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "nodes_per_run",
			Help:      "Nodes with unmatched business processed per batch",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),

		CareerRewards: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "career",
			Name:      "rewards_total",
			Help:      "Total number of career rewards by level",
		}, []string{"level"}),
		CareerEvalFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "career",
			Name:      "evaluation_failures_total",
			Help:      "Total number of career evaluations that failed after a volume post",
		}),

		LedgerEntries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "entries_total",
			Help:      "Total number of ledger entries by purpose and direction",
		}, []string{"purpose", "direction"}),
		LedgerRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rejected_total",
			Help:      "Total number of rejected wallet operations by reason",
		}, []string{"operation", "reason"}),

		ConflictRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "conflict_retries_total",
			Help:      "Total number of optimistic-lock retries by operation",
		}, []string{"operation"}),

		CycleRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Total number of daily cycle phases by status",
		}, []string{"phase", "status"}),
		CycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Daily cycle phase duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"phase"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulCycle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of last successful daily cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordPlacement records a placement attempt.
func RecordPlacement(outcome string) {
	DefaultMetrics.PlacementsTotal.WithLabelValues(outcome).Inc()
}

// RecordReconcile records corrected downline counts.
func RecordReconcile(fixed int) {
	DefaultMetrics.ReconcileFixes.Add(float64(fixed))
}

// RecordVolume records posted business volume.
func RecordVolume(amount decimal.Decimal) {
	DefaultMetrics.VolumePosted.Add(amount.InexactFloat64())
}

// RecordMatchingPayout records one matching bonus.
func RecordMatchingPayout(bonus decimal.Decimal) {
	DefaultMetrics.MatchingPayouts.Inc()
	DefaultMetrics.MatchingPaidAmount.Add(bonus.InexactFloat64())
}

// RecordMatchingBatch records the number of nodes in a batch.
func RecordMatchingBatch(nodes int) {
	DefaultMetrics.MatchingNodesPerRun.Observe(float64(nodes))
}

// RecordCareerReward records a reached career level.
func RecordCareerReward(level string) {
	DefaultMetrics.CareerRewards.WithLabelValues(level).Inc()
}

// RecordCareerFailure records a failed career evaluation.
func RecordCareerFailure() {
	DefaultMetrics.CareerEvalFailures.Inc()
}

// RecordLedgerEntry records an appended ledger entry.
func RecordLedgerEntry(purpose, direction string) {
	DefaultMetrics.LedgerEntries.WithLabelValues(purpose, direction).Inc()
}

// RecordLedgerRejected records a rejected wallet operation.
func RecordLedgerRejected(operation, reason string) {
	DefaultMetrics.LedgerRejected.WithLabelValues(operation, reason).Inc()
}

// RecordConflictRetry records an optimistic-lock retry.
func RecordConflictRetry(operation string) {
	DefaultMetrics.ConflictRetries.WithLabelValues(operation).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordCyclePhase records one phase of the daily cycle.
func RecordCyclePhase(phase, status string, durationSeconds float64) {
	DefaultMetrics.CycleRunsTotal.WithLabelValues(phase, status).Inc()
	DefaultMetrics.CycleDuration.WithLabelValues(phase).Observe(durationSeconds)
}

// RecordCycleSuccess stamps the last successful cycle.
func RecordCycleSuccess(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulCycle.Set(float64(unixSeconds))
}
