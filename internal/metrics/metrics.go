// Package metrics exposes the bridge's Prometheus instruments on a
// dedicated registry shared by the API and worker binaries.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		JobsTotal, RemoteCallDuration, QueueDepth,
		CacheHitsTotal, SpendUSDTotal, AdmissionRejectsTotal,
	)
}

// JobsTotal counts jobs by terminal outcome plus retries.
var JobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "capsule_jobs_total",
		Help: "Jobs by outcome.",
	},
	[]string{"outcome"}, // completed | cached | failed | dead_letter | retried | paused
)

// RemoteCallDuration observes tunnel round-trip latency in seconds.
var RemoteCallDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "capsule_remote_call_duration_seconds",
		Help:    "Latency of signed pipeline calls.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
	},
)

// QueueDepth is the advisory backlog gauge; best-effort, not exact.
var QueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "capsule_queue_depth",
		Help: "Ready plus retry-scheduled jobs.",
	},
)

var CacheHitsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "capsule_cache_hits_total",
		Help: "Generation requests served from the semantic cache.",
	},
)

var SpendUSDTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "capsule_spend_usd_total",
		Help: "Accumulated pipeline spend in USD.",
	},
)

var AdmissionRejectsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "capsule_admission_rejects_total",
		Help: "Requests rejected at admission.",
	},
	[]string{"reason"}, // rate_limit_minute | quota_exceeded
)

// Handler serves the registry in the standard exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(DefaultRegistry, promhttp.HandlerOpts{})
}
