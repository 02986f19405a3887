// Package metrics holds the Prometheus collectors exported by lens.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookupsTotal counts analysis cache lookups by outcome (hit, miss, stale, error).
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lens_cache_lookups_total",
			Help: "Total number of analysis cache lookups",
		},
		[]string{"outcome"},
	)

	// CachePurgedTotal counts records removed by the retention purge.
	CachePurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lens_cache_purged_total",
			Help: "Total number of analysis records removed by retention purges",
		},
	)

	// AnalysisDuration tracks the latency of fresh analyzer calls.
	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lens_analysis_duration_seconds",
			Help:    "Duration of remote analysis calls in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"status"},
	)

	// OperationPollsTotal counts long-running operation polls.
	OperationPollsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lens_operation_polls_total",
			Help: "Total number of long-running operation polls issued",
		},
	)

	// ClipOutcomesTotal counts video generation results by terminal kind.
	ClipOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lens_clip_outcomes_total",
			Help: "Total number of video generation requests by outcome",
		},
		[]string{"outcome"},
	)

	// MessagesTotal counts routed messages by type and result.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lens_messages_total",
			Help: "Total number of routed messages",
		},
		[]string{"type", "result"},
	)
)
