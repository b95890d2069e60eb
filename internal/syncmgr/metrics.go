package syncmgr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cageside_device_events_recorded_total",
		Help: "Events recorded on the device by path (direct or queued).",
	}, []string{"path"})
	metricDrainItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cageside_device_drain_items_total",
		Help: "Queued events handled by drain passes.",
	}, []string{"outcome"})
	metricPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cageside_device_queue_pending",
		Help: "Events waiting to be synced.",
	})
	metricOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cageside_device_online",
		Help: "1 while the gateway is reachable.",
	})
)
