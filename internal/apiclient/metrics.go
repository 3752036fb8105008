package apiclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multichat",
			Name:      "upstream_attempts_total",
			Help:      "Total HTTP attempts against the completion endpoint",
		},
		[]string{"outcome"}, // "ok" or an error kind
	)

	upstreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "multichat",
			Name:      "upstream_duration_seconds",
			Help:      "Duration of completion calls including retries",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
	)

	responseCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multichat",
			Name:      "response_cache_total",
			Help:      "Response cache lookups",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)
)
