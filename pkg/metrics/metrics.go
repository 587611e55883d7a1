package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_hits_total",
		Help: "Total number of tile store hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_misses_total",
		Help: "Total number of tile store misses",
	})

	CacheStores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_stores_total",
		Help: "Total number of tile store write operations",
	})

	UpstreamFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tile_upstream_fetches_total",
		Help: "Total number of upstream tile fetch attempts",
	}, []string{"source"})

	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tile_upstream_errors_total",
		Help: "Total number of failed upstream tile fetches",
	}, []string{"source", "reason"})

	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tile_upstream_latency_seconds",
		Help:    "Latency of upstream tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	TilesSynthesized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiles_synthesized_total",
		Help: "Total number of tiles synthesized locally after all sources failed",
	})

	PreloadTiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preload_tiles_total",
		Help: "Total number of tiles processed by preload runs",
	}, []string{"outcome"})
)
