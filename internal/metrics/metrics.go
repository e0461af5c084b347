package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCCallsTotal tracks remote call attempts per operation
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodguard_rpc_calls_total",
			Help: "Total number of remote call attempts",
		},
		[]string{"op"},
	)

	// RPCOutcomesTotal tracks final outcomes per operation
	RPCOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodguard_rpc_outcomes_total",
			Help: "Total number of executor outcomes",
		},
		[]string{"op", "outcome"},
	)

	// FloodWaitsTotal tracks flood waits signaled per operation
	FloodWaitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodguard_flood_waits_total",
			Help: "Total number of flood waits received",
		},
		[]string{"op"},
	)

	// FloodWaitSeconds tracks time spent sleeping on flood waits
	FloodWaitSeconds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodguard_flood_wait_seconds_total",
			Help: "Total seconds spent waiting on flood waits",
		},
		[]string{"op"},
	)

	// RPCLatency tracks end-to-end latency of successful calls, waits included
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "floodguard_rpc_latency_seconds",
			Help:    "Remote call latency in seconds, including flood waits",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// DeferredDeletionsPending tracks scheduled deletions not yet run
	DeferredDeletionsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "floodguard_deferred_deletions_pending",
			Help: "Deferred deletions scheduled but not yet run",
		},
	)

	// DeferredDeletionsTotal tracks deferred deletions by result
	DeferredDeletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodguard_deferred_deletions_total",
			Help: "Total number of deferred deletions run",
		},
		[]string{"result"},
	)

	// CacheRequestsTotal tracks cache lookups
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodguard_cache_requests_total",
			Help: "Total number of cache lookups",
		},
		[]string{"cache", "result"},
	)
)

// RPCObserver exports executor events to Prometheus.
type RPCObserver struct{}

func (RPCObserver) RecordAttempt(name string) {
	RPCCallsTotal.WithLabelValues(name).Inc()
}

func (RPCObserver) RecordFloodWait(name string, wait time.Duration) {
	FloodWaitsTotal.WithLabelValues(name).Inc()
	FloodWaitSeconds.WithLabelValues(name).Add(wait.Seconds())
}

func (RPCObserver) RecordSuccess(name string, latency time.Duration) {
	RPCOutcomesTotal.WithLabelValues(name, "success").Inc()
	RPCLatency.WithLabelValues(name).Observe(latency.Seconds())
}

func (RPCObserver) RecordDenied(name string) {
	RPCOutcomesTotal.WithLabelValues(name, "denied").Inc()
}

func (RPCObserver) RecordError(name string) {
	RPCOutcomesTotal.WithLabelValues(name, "error").Inc()
}

// CacheLookup records a cache hit or miss.
func CacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequestsTotal.WithLabelValues(cache, result).Inc()
}
