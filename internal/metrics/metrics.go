// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schooladmin_upstream_requests_total",
		Help: "Requests sent to the REST API, by method and response code.",
	}, []string{"method", "code"})

	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "schooladmin_upstream_request_seconds",
		Help:    "Latency of REST API requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schooladmin_cache_lookups_total",
		Help: "Query cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	CacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schooladmin_cache_invalidations_total",
		Help: "Prefix invalidations applied to the query cache.",
	})

	LiveTables = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "schooladmin_live_tables",
		Help: "Open live table connections.",
	})
)
