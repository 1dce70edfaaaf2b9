package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Graph Metrics
var (
	// GraphMutationsTotal tracks follow and vote mutations by operation and result
	GraphMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_mutations_total",
			Help: "Total graph mutations by operation and result",
		},
		[]string{"operation", "result"},
	)

	// GraphOpDuration tracks engine operation latency in seconds
	GraphOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graph_operation_duration_seconds",
			Help:    "Graph engine operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// VoteRetractionsTotal tracks votes removed because eligibility was lost on unfollow
	VoteRetractionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graph_vote_retractions_total",
			Help: "Votes retracted after an unfollow removed eligibility",
		},
	)

	// EligibilityChecksTotal tracks canRepute outcomes
	EligibilityChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_eligibility_checks_total",
			Help: "Eligibility evaluations by result (eligible/ineligible)",
		},
		[]string{"result"},
	)
)

// View Metrics
var (
	// ViewsRecordedTotal tracks view recording attempts by result
	ViewsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "views_recorded_total",
			Help: "View recording attempts by result (recorded/rate_limited/not_found/error)",
		},
		[]string{"result"},
	)

	// ViewCountCacheTotal tracks view counter cache lookups
	ViewCountCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "view_count_cache_total",
			Help: "View counter cache lookups by result (hit/miss)",
		},
		[]string{"result"},
	)
)

// Redis Operations Metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)
)

// gRPC Metrics
var (
	// RPCRequestsTotal tracks unary calls by method and status code
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_requests_total",
			Help: "Total unary gRPC requests by method and code",
		},
		[]string{"method", "code"},
	)
)

// Result reports "ok" or "error" for a label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
