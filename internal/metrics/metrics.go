// Package metrics defines the Prometheus collectors exported by the market.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Price cache lookups by result.
	CacheAccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_price_cache_access_total",
			Help: "Number of price cache hits and misses.",
		},
		[]string{"result"}, // hit | miss
	)

	// Entries dropped for capacity or because their week fell out of retention.
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_price_cache_evictions_total",
			Help: "Number of price cache entries evicted.",
		},
		[]string{"reason"}, // lru | retention
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "market_batch_duration_seconds",
			Help:    "Time taken to update every product for one week.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs → ~1.6s
		},
	)

	// Products that held their previous price because their step failed.
	PriceUpdateErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_price_update_errors_total",
			Help: "Count of per-product price update failures.",
		},
		[]string{"product"},
	)

	ActiveModifiers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "market_active_modifiers",
			Help: "Number of market modifiers currently stored.",
		},
	)

	CurrentWeek = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "market_current_week",
			Help: "Most recently processed game week.",
		},
	)

	// Market events applied, by source.
	EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_events_applied_total",
			Help: "Number of market events that wrote modifiers.",
		},
		[]string{"source"}, // season | admin | random
	)
)
