package buildcache

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "engined",
		Subsystem: "buildcache",
		Name:      "hits_total",
		Help:      "Total engine builds satisfied from cache",
	})

	cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "engined",
		Subsystem: "buildcache",
		Name:      "misses_total",
		Help:      "Total engine builds not found in cache",
	})

	storageFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "engined",
		Subsystem: "buildcache",
		Name:      "storage_fallback_total",
		Help:      "Total builds that skipped caching due to insufficient storage",
	})

	prunesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "engined",
		Subsystem: "buildcache",
		Name:      "pruned_slots_total",
		Help:      "Total cache slots removed by pruning",
	})
)

func init() {
	prometheus.MustRegister(cacheHitsTotal, cacheMissesTotal, storageFallbackTotal, prunesTotal)
}

// ObserveHit counts a cache hit.
func ObserveHit() { cacheHitsTotal.Inc() }

// ObserveMiss counts a cache miss.
func ObserveMiss() { cacheMissesTotal.Inc() }

// ObserveStorageFallback counts a build that proceeded without caching.
func ObserveStorageFallback() { storageFallbackTotal.Inc() }
