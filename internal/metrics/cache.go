package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics holds Prometheus metrics for tile cache performance.
type CacheMetrics struct {
	Hits   *prometheus.CounterVec
	Misses *prometheus.CounterVec
	Errors *prometheus.CounterVec
}

// NewCacheMetrics creates and registers tile cache metrics on the given registry.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tile_cache",
			Name:      "hits_total",
			Help:      "Total number of tile cache hits, by provider.",
		}, []string{"provider"}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tile_cache",
			Name:      "misses_total",
			Help:      "Total number of tile cache misses, by provider.",
		}, []string{"provider"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tile_cache",
			Name:      "errors_total",
			Help:      "Total number of failed tile cache operations, by operation (get/set).",
		}, []string{"operation"}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.Errors)
	return m
}
