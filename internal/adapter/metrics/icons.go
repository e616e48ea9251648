package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IconMetrics holds Prometheus metrics for the theming icon cache.
type IconMetrics struct {
	Hits               *prometheus.CounterVec
	Misses             *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	Rollovers          prometheus.Counter
	FoldersRemoved     prometheus.Counter
}

// NewIconMetrics creates and registers icon cache metrics on the given registry.
func NewIconMetrics(reg prometheus.Registerer) *IconMetrics {
	m := &IconMetrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "icon_cache",
			Name:      "hits_total",
			Help:      "Total number of icon cache hits, by icon kind.",
		}, []string{"kind"}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "icon_cache",
			Name:      "misses_total",
			Help:      "Total number of icon cache misses, by icon kind.",
		}, []string{"kind"}),
		GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "icon_cache",
			Name:      "generation_duration_seconds",
			Help:      "Time spent generating and storing an icon, by icon kind.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"kind"}),
		Rollovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "icon_cache",
			Name:      "folder_rollovers_total",
			Help:      "Total number of cache folders created after a cache-buster change.",
		}),
		FoldersRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "icon_cache",
			Name:      "folders_removed_total",
			Help:      "Total number of stale cache folders deleted during rollovers.",
		}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.GenerationDuration, m.Rollovers, m.FoldersRemoved)
	return m
}

func (m *IconMetrics) CacheHit(kind string)  { m.Hits.WithLabelValues(kind).Inc() }
func (m *IconMetrics) CacheMiss(kind string) { m.Misses.WithLabelValues(kind).Inc() }

func (m *IconMetrics) Generated(kind string, d time.Duration) {
	m.GenerationDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *IconMetrics) FolderRollover(removed int) {
	m.Rollovers.Inc()
	m.FoldersRemoved.Add(float64(removed))
}
