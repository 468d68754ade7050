// Package metrics defines prometheus metrics to expose
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "claude_invocation_duration_seconds",
			Help:    "Total time taken for invocations in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120, 180, 300, 600, 900},
		},
		[]string{"model", "status"},
	)

	InvocationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claude_invocation_count_total",
			Help: "Total number of invocations processed",
		},
		[]string{"model", "status"},
	)

	InputTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claude_invocation_input_tokens_total",
			Help: "Total number of input tokens reported by the model",
		},
		[]string{"model"},
	)

	OutputTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claude_invocation_output_tokens_total",
			Help: "Total number of output tokens reported by the model",
		},
		[]string{"model"},
	)

	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claude_invocation_error_count",
			Help: "Error count",
		},
		[]string{"model", "from"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claude_invocation_cache_lookups_total",
			Help: "Model result cache lookups",
		},
		[]string{"result"},
	)

	UsageFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claude_invocation_usage_flushes_total",
			Help: "Usage record flushes",
		},
		[]string{"status"},
	)

	ResponseCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claude_invocation_status_code",
			Help: "Status Codes",
		},
		[]string{"path", "status_code"},
	)
)
