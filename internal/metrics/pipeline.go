package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Filter-extraction metrics.
var (
	ExtractionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_total",
			Help:      "Filter extraction outcomes",
		},
		[]string{"state", "reason"}, // parsed|degraded|skipped; provider_unavailable|malformed_output|""
	)

	CompletionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Chat completion duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"provider", "model"},
	)

	CompletionTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_tokens_total",
			Help:      "Chat completion tokens consumed",
		},
		[]string{"provider", "model", "type"}, // prompt|completion
	)
)

// Search orchestration metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Searches by effective ranking strategy and status",
		},
		[]string{"strategy", "status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"strategy"},
	)

	SearchDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_degraded_total",
			Help:      "Pipeline components that degraded during a search",
		},
		[]string{"component"},
	)

	SearchTopScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_top_similarity",
			Help:      "Best similarity score per vector search",
			Buckets:   prometheus.LinearBuckets(0.5, 0.05, 11),
		},
	)
)

// Backfill metrics.
var (
	BackfillRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_embeddings_total",
			Help:      "Backfill embedding outcomes per locale",
		},
		[]string{"locale", "result"}, // embedded|skipped|failed
	)

	BackfillProviderCallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_provider_calls_total",
			Help:      "Batch embedding calls issued by backfill, retries included",
		},
	)
)

var (
	pipelineOnce sync.Once
	backfillOnce sync.Once
)

// RegisterPipelineMetrics registers extraction and search metrics. Safe to call more than once.
func RegisterPipelineMetrics() {
	pipelineOnce.Do(func() {
		prometheus.MustRegister(
			ExtractionTotal,
			CompletionDuration,
			CompletionTokensTotal,
			SearchRequestsTotal,
			SearchDuration,
			SearchDegradedTotal,
			SearchTopScore,
		)
	})
}

// RegisterBackfillMetrics registers backfill metrics. Safe to call more than once.
func RegisterBackfillMetrics() {
	backfillOnce.Do(func() {
		prometheus.MustRegister(BackfillRowsTotal, BackfillProviderCallsTotal)
	})
}
