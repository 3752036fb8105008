package scan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multichat",
			Name:      "scans_total",
			Help:      "Knowledge base scans by outcome",
		},
		[]string{"outcome"},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "multichat",
			Name:      "scan_duration_seconds",
			Help:      "Duration of completed scans in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multichat",
			Name:      "scan_pages_total",
			Help:      "Pages processed by scans",
		},
		[]string{"result"}, // "indexed", "failed"
	)
)
