package directory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "directory_cache_hits_total",
	Help: "Total number of directory cache hits",
})

var cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "directory_cache_misses_total",
	Help: "Total number of directory cache misses",
})
