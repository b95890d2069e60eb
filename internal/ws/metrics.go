package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	clientsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cageside",
		Subsystem: "ws",
		Name:      "clients",
		Help:      "Websocket clients attached to any bout.",
	})
	evictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cageside",
		Subsystem: "ws",
		Name:      "evictions_total",
		Help:      "Websocket clients detached, by reason.",
	}, []string{"reason"})
)
