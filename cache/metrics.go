package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks entries found, by store layer
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spa_shell_cache_hits_total",
			Help: "Total number of cache store hits",
		},
		[]string{"layer"}, // "memory", "sqlite", "redis"
	)

	// CacheMisses tracks lookups that found nothing, by store layer
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spa_shell_cache_misses_total",
			Help: "Total number of cache store misses",
		},
		[]string{"layer"},
	)

	// CacheWrites tracks stored entries, by store layer
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spa_shell_cache_writes_total",
			Help: "Total number of entries written to the cache store",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spa_shell_cache_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"layer", "operation"}, // "open", "match", "put", "delete", "keys"
	)
)

func observeMatch(layer string, found bool, err error) {
	switch {
	case err != nil:
		CacheErrors.WithLabelValues(layer, "match").Inc()
	case found:
		CacheHits.WithLabelValues(layer).Inc()
	default:
		CacheMisses.WithLabelValues(layer).Inc()
	}
}

func observeWrite(layer string, n int, err error) {
	if err != nil {
		CacheErrors.WithLabelValues(layer, "put").Inc()
		return
	}
	CacheWrites.WithLabelValues(layer).Add(float64(n))
}
