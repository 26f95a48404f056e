package verification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scanOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmatrust_scan_outcomes_total",
		Help: "Scan verifications by decisive outcome",
	}, []string{"outcome"})

	scanDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pharmatrust_scan_duration_ms",
		Help:    "End-to-end verification pipeline latency in milliseconds",
		Buckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500},
	})
)
