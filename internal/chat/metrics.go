package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multichat",
			Name:      "chat_requests_total",
			Help:      "Total chat requests by outcome",
		},
		[]string{"outcome"}, // "success" or an error kind
	)

	requestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "multichat",
			Name:      "chat_request_duration_seconds",
			Help:      "Duration of chat requests in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	knowledgeSourceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multichat",
			Name:      "knowledge_source_total",
			Help:      "Knowledge source used to ground chat requests",
		},
		[]string{"source"}, // "snapshot", "fallback", "none"
	)

	relevantChunks = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "multichat",
			Name:      "relevant_chunks",
			Help:      "Number of ranked chunks embedded per prompt",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		},
	)
)
