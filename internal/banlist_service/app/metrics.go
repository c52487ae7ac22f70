package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importRowsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moderation",
			Subsystem: "banlist",
			Name:      "import_rows_total",
			Help:      "CSV rows seen by banlist imports.",
		},
		[]string{"result"}, // accepted, skipped
	)

	authorityChunksCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moderation",
			Subsystem: "banlist",
			Name:      "authority_chunks_total",
			Help:      "Ban chunks pushed to the external authority.",
		},
		[]string{"result"}, // success, error
	)

	importDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "moderation",
			Subsystem: "banlist",
			Name:      "import_duration_seconds",
			Help:      "Duration of banlist imports including the authority push.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	globalBansCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moderation",
			Subsystem: "banlist",
			Name:      "global_bans_total",
			Help:      "Global ban and unban operations.",
		},
		[]string{"action", "result"},
	)
)
