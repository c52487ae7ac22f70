package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	denylistItemsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moderation",
			Subsystem: "denylist",
			Name:      "items_total",
			Help:      "Denylist items handled by operator commands.",
		},
		[]string{"category", "operation", "result"}, // result: added, existing, skipped, removed
	)

	lowEntropyWarningsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "moderation",
			Subsystem: "denylist",
			Name:      "low_entropy_hashes_total",
			Help:      "Image hashes added despite the low entropy warning.",
		},
	)
)
