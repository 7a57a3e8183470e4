package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session/transaction metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphlite_sessions_active",
			Help: "Number of currently active sessions",
		},
	)

	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphlite_transactions_total",
			Help: "Total number of transactions by outcome",
		},
		[]string{"outcome"}, // committed, aborted, conflict
	)

	TransactionCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphlite_transaction_commit_duration_seconds",
			Help:    "Time taken to commit a transaction in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Query metrics
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphlite_queries_total",
			Help: "Total number of queries executed by statement kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphlite_query_duration_seconds",
			Help:    "End-to-end query execution duration in seconds by statement kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	QueryPlanningDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphlite_query_planning_duration_seconds",
			Help:    "Time taken to parse, validate, and plan a query in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphlite_rows_returned",
			Help:    "Number of rows returned per query",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	// Cache metrics, one gauge trio per cache (plan, result, catalog),
	// labeled by cache name so gql.cache_stats() and /metrics agree.
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphlite_cache_hits_total",
			Help: "Total cache hits by cache name",
		},
		[]string{"cache"},
	)

	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphlite_cache_misses_total",
			Help: "Total cache misses by cache name",
		},
		[]string{"cache"},
	)

	CacheSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graphlite_cache_size",
			Help: "Current entry count by cache name",
		},
		[]string{"cache"},
	)

	// Storage metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graphlite_nodes_total",
			Help: "Total number of nodes by graph",
		},
		[]string{"graph"},
	)

	EdgesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graphlite_edges_total",
			Help: "Total number of edges by graph",
		},
		[]string{"graph"},
	)

	StorageOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphlite_storage_op_duration_seconds",
			Help:    "Time taken for a single KV storage operation in seconds, by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(TransactionCommitDuration)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryPlanningDuration)
	prometheus.MustRegister(RowsReturned)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(CacheSize)
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(EdgesTotal)
	prometheus.MustRegister(StorageOpDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
