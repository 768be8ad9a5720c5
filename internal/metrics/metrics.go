package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upstream calls
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightsync_upstream_requests_total",
			Help: "Upstream HTTP requests by api and outcome",
		},
		[]string{"api", "outcome"}, // "ok", "retry", "rate_limited", "client_error", "failed"
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flightsync_upstream_request_duration_seconds",
			Help:    "Duration of a single upstream HTTP attempt",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"api"},
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightsync_token_refreshes_total",
			Help: "Access token exchanges by api and result",
		},
		[]string{"api", "result"},
	)

	// 0 closed, 1 half-open, 2 open
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flightsync_upstream_breaker_state",
			Help: "Circuit breaker state per upstream",
		},
		[]string{"api"},
	)

	// Sync
	SyncRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightsync_sync_records_total",
			Help: "Flight records processed by persistence outcome",
		},
		[]string{"outcome"}, // "inserted", "updated", "unchanged", "skipped", "errored"
	)

	SyncJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightsync_sync_jobs_total",
			Help: "Sync jobs by kind and result",
		},
		[]string{"kind", "result"},
	)

	SyncJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flightsync_sync_job_duration_seconds",
			Help:    "Wall time of a sync job",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	// Search cache
	SearchCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flightsync_search_cache_hits_total",
			Help: "Search cache hits",
		},
	)

	SearchCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flightsync_search_cache_misses_total",
			Help: "Search cache misses, including expired and bypassed lookups",
		},
	)

	SearchCacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flightsync_search_cache_invalidated_keys_total",
			Help: "Keys removed by route/date invalidation",
		},
	)

	WorkerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flightsync_worker_jobs_in_flight",
			Help: "Jobs currently held by the worker pool",
		},
	)
)

// RecordCounts adds one batch of persistence counters.
func RecordCounts(inserted, updated, unchanged, skipped, errored int) {
	SyncRecords.WithLabelValues("inserted").Add(float64(inserted))
	SyncRecords.WithLabelValues("updated").Add(float64(updated))
	SyncRecords.WithLabelValues("unchanged").Add(float64(unchanged))
	SyncRecords.WithLabelValues("skipped").Add(float64(skipped))
	SyncRecords.WithLabelValues("errored").Add(float64(errored))
}
