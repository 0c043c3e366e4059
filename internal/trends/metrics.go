package trends

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trends_provider_calls_total",
		Help: "Total number of provider calls by operation and outcome",
	}, []string{"operation", "outcome"})

	providerCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trends_provider_call_duration_seconds",
		Help:    "Duration of provider calls, excluding pacing",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	pacingWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trends_pacing_wait_seconds",
		Help:    "Time spent waiting on the pacing gate before a provider call",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
	})
)
