package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	accepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cageside",
		Subsystem: "ingest",
		Name:      "events_accepted_total",
		Help:      "Events persisted by the ingest gateway.",
	}, []string{"corner", "aspect"})
	duplicates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cageside",
		Subsystem: "ingest",
		Name:      "events_duplicate_total",
		Help:      "Submissions answered from an existing idempotency token.",
	})
	rejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cageside",
		Subsystem: "ingest",
		Name:      "events_rejected_total",
		Help:      "Submissions rejected by the ingest gateway.",
	}, []string{"reason"})
)
