package rediscache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheLookupsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "moderation",
		Subsystem: "chat_cache",
		Name:      "lookups_total",
		Help:      "Chat record lookups by cache result.",
	},
	[]string{"result"}, // hit, miss
)
