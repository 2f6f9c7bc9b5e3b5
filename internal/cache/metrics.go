package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caredraft_cache_hits_total",
			Help: "Total number of cache lookups that returned a live entry",
		},
		[]string{"cache"},
	)

	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caredraft_cache_misses_total",
			Help: "Total number of cache lookups that found no live entry",
		},
		[]string{"cache"},
	)

	cacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caredraft_cache_evictions_total",
			Help: "Total number of cache entries removed, by reason",
		},
		[]string{"cache", "reason"},
	)
)
