package scoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roundComputeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cageside",
		Subsystem: "scoring",
		Name:      "round_compute_seconds",
		Help:      "Time to load, score and upsert one round.",
		Buckets:   prometheus.DefBuckets,
	})
	roundComputeShared = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cageside",
		Subsystem: "scoring",
		Name:      "round_compute_shared_total",
		Help:      "Round computations answered from a concurrent in-flight call.",
	})
)
