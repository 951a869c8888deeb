// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ModelInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_invocations_total",
			Help: "Total LLM model invocations by routed provider and model",
		},
		[]string{"provider", "model"},
	)

	FallbackRate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_rate",
			Help: "Routing decisions that required a fallback provider",
		},
		[]string{"profile"},
	)

	ResponseTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "avg_response_time",
			Help: "Observed LLM response time in seconds",
		},
		[]string{"provider", "model"},
	)

	DecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "routing_decision_duration_seconds",
			Help:    "Time spent computing a routing decision",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"outcome"},
	)

	ProviderHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provider_healthy",
			Help: "1 when the provider's last health probe succeeded, 0 otherwise",
		},
		[]string{"provider"},
	)
)
