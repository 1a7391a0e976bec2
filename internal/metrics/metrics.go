// Package metrics defines the Prometheus collectors shared across the module.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FlowCalls counts workflow service calls by flow path and outcome.
	FlowCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_flow_calls_total",
			Help: "Workflow service calls by flow path and status.",
		},
		[]string{"path", "status"},
	)

	// FlowLatency tracks workflow call duration per flow path.
	FlowLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepresearch_flow_call_duration_seconds",
			Help:    "Workflow service call latency by flow path.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	// RetrievalAttempts counts retrieval loop attempts by document kind.
	RetrievalAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_retrieval_attempts_total",
			Help: "Retrieval loop attempts by document kind.",
		},
		[]string{"kind"},
	)

	// PipelineRuns counts research pipeline completions by terminal status.
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_pipeline_runs_total",
			Help: "Research pipeline runs by terminal status.",
		},
		[]string{"status"},
	)

	// CompletionStreams counts direct completion streams by terminal status.
	CompletionStreams = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_completion_streams_total",
			Help: "Direct completion streams by terminal status.",
		},
		[]string{"status"},
	)
)
