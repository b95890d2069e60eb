package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cageside",
		Subsystem: "jobs",
		Name:      "finished_total",
		Help:      "Aggregation jobs that reached a terminal status.",
	}, []string{"job_type", "status"})
	jobSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cageside",
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Wall time of one aggregation step.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job_type"})
	triggersDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cageside",
		Subsystem: "jobs",
		Name:      "triggers_total",
		Help:      "Asynchronous aggregation triggers handed to a backend.",
	}, []string{"trigger"})
)
