// Package metrics holds the Prometheus collectors of constellation.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "constellation"

// Index metrics.
var (
	IndexDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_documents_total",
			Help:      "Documents written to the index, by outcome",
		},
		[]string{"service", "result"}, // "indexed" / "failed" / "removed"
	)

	IndexRebuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_rebuild_duration_seconds",
			Help:      "Full index rebuild duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Catalog searches, by query cache outcome",
		},
		[]string{"service", "cache"}, // "hit" / "miss"
	)
)

// Service metrics.
var (
	CapabilitiesCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capabilities_cache_requests_total",
			Help:      "Capabilities cache lookups",
		},
		[]string{"specification", "result"}, // "hit" / "miss"
	)

	Workers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Registered service workers, by state",
		},
		[]string{"specification", "state"},
	)
)

var registerOnce sync.Once

// Register registers every collector with the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			IndexDocumentsTotal,
			IndexRebuildDuration,
			SearchRequestsTotal,
			CapabilitiesCacheRequestsTotal,
			Workers,
			httpRequestDuration,
			httpRequestsTotal,
		)
	})
}
