package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_fetches_total",
			Help: "Total number of upstream fetches per dashboard",
		},
		[]string{"dashboard"},
	)

	FetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_fetch_failures_total",
			Help: "Total number of failed upstream fetches per dashboard",
		},
		[]string{"dashboard"},
	)

	FetchesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_fetches_skipped_total",
			Help: "Fetches skipped because a previous fetch was still in flight",
		},
		[]string{"dashboard"},
	)

	StaleResponsesDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_stale_responses_discarded_total",
			Help: "Fetch completions discarded because a newer fetch was already issued",
		},
		[]string{"dashboard"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "argus_fetch_duration_seconds",
			Help:    "Time taken to fetch and process one dashboard refresh",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dashboard"},
	)

	EngineOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_engine_operations_total",
			Help: "Total number of tabular engine mutations by operation",
		},
		[]string{"operation"},
	)

	RecordsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_records_served_total",
			Help: "Total number of records returned to API consumers",
		},
		[]string{"dashboard"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_cache_errors_total",
			Help: "Total number of cache errors by kind",
		},
		[]string{"cache", "kind"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argus_websocket_clients",
			Help: "Number of connected WebSocket clients",
		},
	)

	NotificationsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_notifications_emitted_total",
			Help: "Total number of notifications emitted by severity",
		},
		[]string{"severity"},
	)
)
