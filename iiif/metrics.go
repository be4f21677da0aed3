package iiif

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/greut/iiif3/cache"
	"github.com/greut/iiif3/source"
)

const namespace = "iiif"

// Metrics are the prometheus collectors of the server.
type Metrics struct {
	responses *prometheus.CounterVec
	process   prometheus.Histogram
}

// NewMetrics registers the collectors, including the cache and resolver
// counters.
func NewMetrics(reg prometheus.Registerer, tiles *cache.TileCache, resolver *source.Resolver) *Metrics {
	m := &Metrics{
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "The total number of responses per status code",
		}, []string{"code"}),
		process: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_duration_seconds",
			Help:      "The seconds spent producing derivatives",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}

	reg.MustRegister(m.responses, m.process)

	cacheCounter := func(name, help, tier string, fn func(cache.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "cache",
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"tier": tier},
		}, func() float64 {
			return float64(fn(tiles.Stats()))
		})
	}

	reg.MustRegister(
		cacheCounter("hits_total", "The total number of cache hits", "memory",
			func(s cache.Stats) uint64 { return s.MemoryHits }),
		cacheCounter("misses_total", "The total number of cache misses", "memory",
			func(s cache.Stats) uint64 { return s.MemoryMisses }),
		cacheCounter("hits_total", "The total number of cache hits", "disk",
			func(s cache.Stats) uint64 { return s.DiskHits }),
		cacheCounter("misses_total", "The total number of cache misses", "disk",
			func(s cache.Stats) uint64 { return s.DiskMisses }),
		cacheCounter("write_errors_total", "The total number of failed cache writes", "disk",
			func(s cache.Stats) uint64 { return s.DiskWriteErrors }),
	)

	sourceCounter := func(name, help string, fn func(source.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(fn(resolver.Stats()))
		})
	}

	reg.MustRegister(
		sourceCounter("local_hits_total", "The total number of images found locally",
			func(s source.Stats) uint64 { return s.LocalHits }),
		sourceCounter("proxy_hits_total", "The total number of images found in the proxy",
			func(s source.Stats) uint64 { return s.ProxyHits }),
		sourceCounter("fetches_total", "The total number of downloads",
			func(s source.Stats) uint64 { return s.Fetches }),
		sourceCounter("fetch_errors_total", "The total number of failed downloads",
			func(s source.Stats) uint64 { return s.FetchErrors }),
	)

	return m
}

func (m *Metrics) observe(seconds float64) {
	if m != nil {
		m.process.Observe(seconds)
	}
}
