package observability

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var driverLabel atomic.Value

func init() {
	driverLabel.Store("postgres")
}

// SetDriver sets the store driver label attached to request and query metrics.
func SetDriver(s string) {
	if s == "" {
		s = "postgres"
	}
	driverLabel.Store(s)
}

func getDriver() string {
	if v := driverLabel.Load(); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "postgres"
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status", "driver"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status", "driver"},
	)

	storeQueryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Latency of listing store queries in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"query", "result", "driver"},
	)

	transactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_transactions_total",
			Help: "Named transactions by outcome (commit, rollback, begin_error, commit_error, safety_net).",
		},
		[]string{"name", "outcome"},
	)

	nazotteCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nazotte_candidates",
			Help:    "Estates returned by the bounding box phase of a polygon search.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	nazotteResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nazotte_results",
			Help:    "Estates returned by a polygon search after containment and truncation.",
			Buckets: []float64{0, 1, 5, 10, 20, 30, 40, 50},
		},
	)

	cacheOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Latency of result cache operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
		[]string{"op", "result"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Cache results by outcome.",
		},
		[]string{"outcome", "kind"},
	)

	invalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Cache invalidation events applied, by collection and result.",
		},
		[]string{"collection", "result"},
	)

	kafkaConsumerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Errors seen by the invalidation consumer, by stage.",
		},
		[]string{"stage"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	d := getDriver()
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st, d).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st, d).Observe(durationSeconds)
}

func ObserveStoreQuery(query string, err error, durationSeconds float64) {
	storeQueryDurationSeconds.WithLabelValues(query, resultLabel(err), getDriver()).Observe(durationSeconds)
}

func ObserveTx(name, outcome string) {
	transactionsTotal.WithLabelValues(name, outcome).Inc()
}

func ObserveNazotte(candidates, results int) {
	nazotteCandidates.Observe(float64(candidates))
	nazotteResults.Observe(float64(results))
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	cacheOpDurationSeconds.WithLabelValues(op, resultLabel(err)).Observe(durationSeconds)
}

func AddCacheHits(kind string, n int) {
	if n > 0 {
		cacheResults.WithLabelValues("hit", kind).Add(float64(n))
	}
}

func AddCacheMisses(kind string, n int) {
	if n > 0 {
		cacheResults.WithLabelValues("miss", kind).Add(float64(n))
	}
}

func ObserveInvalidation(collection string, err error) {
	invalidationsTotal.WithLabelValues(collection, resultLabel(err)).Inc()
}

func IncKafkaConsumerError(stage string) {
	kafkaConsumerErrors.WithLabelValues(stage).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
