package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enforcementEventsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moderation",
			Name:      "enforcement_events_total",
			Help:      "Enforcement engine runs by event kind and terminal outcome.",
		},
		[]string{"kind", "outcome"},
	)

	denylistHitsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moderation",
			Name:      "denylist_hits_total",
			Help:      "Events that matched a denylist entry, by category.",
		},
		[]string{"category"},
	)

	handleDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "moderation",
			Name:      "enforcement_handle_duration_seconds",
			Help:      "Time spent handling one event.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)
