package metrics

import "github.com/prometheus/client_golang/prometheus"

// Invalidation origins.
const (
	OriginLocal  = "local"
	OriginRemote = "remote"
)

// ConfigCacheMetrics tracks the app config read-through cache. Layers are
// "memory" for the per-process ttlcache and "redis" for the shared hashes.
type ConfigCacheMetrics struct {
	Hits   *prometheus.CounterVec
	Misses *prometheus.CounterVec
	// Invalidations counts L1 evictions by where the write happened:
	// this instance or another one via pub/sub.
	Invalidations *prometheus.CounterVec
	// DiscardedLoads counts source loads that were not cached because the
	// app was written while they ran.
	DiscardedLoads prometheus.Counter
}

func NewConfigCacheMetrics(reg prometheus.Registerer) *ConfigCacheMetrics {
	m := &ConfigCacheMetrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "App config lookups answered by a cache layer.",
		}, []string{"layer"}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "App config lookups a cache layer could not answer.",
		}, []string{"layer"}),
		Invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Per-app evictions from the in-memory layer, by origin of the write.",
		}, []string{"origin"}),
		DiscardedLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "discarded_loads_total",
			Help:      "Database loads left uncached because the app changed mid-load.",
		}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.Invalidations, m.DiscardedLoads)
	return m
}
