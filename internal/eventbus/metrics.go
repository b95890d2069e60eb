package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	published = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cageside",
		Subsystem: "bus",
		Name:      "published_total",
		Help:      "Notifications published on the event bus.",
	}, []string{"kind"})
	dropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cageside",
		Subsystem: "bus",
		Name:      "dropped_total",
		Help:      "Notifications dropped from full subscriber mailboxes.",
	})
	subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cageside",
		Subsystem: "bus",
		Name:      "subscribers",
		Help:      "Active event bus subscriptions.",
	})
)
