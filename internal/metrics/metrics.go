// Package metrics exposes Prometheus collectors for the sync daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the daemon's Prometheus metrics. A nil *Collector is valid
// and records nothing.
type Collector struct {
	sequenceClaims *prometheus.CounterVec

	jobsSubmitted *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobsFailed    *prometheus.CounterVec
	jobsRetried   *prometheus.CounterVec
	jobsInFlight  prometheus.Gauge
	jobLatency    *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	fallbacks  *prometheus.CounterVec
	shortfalls *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewCollector creates the collectors and registers them with reg. A nil reg
// uses a fresh registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		sequenceClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recsync_sequence_claims_total",
			Help: "Sequence numbers claimed, by entity kind",
		}, []string{"entity"}),
		jobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recsync_jobs_submitted_total",
			Help: "Write jobs recorded in the outbox",
		}, []string{"operation"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recsync_jobs_completed_total",
			Help: "Write jobs acknowledged by the recommendation service",
		}, []string{"operation"}),
		jobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recsync_jobs_failed_total",
			Help: "Write jobs that failed permanently",
		}, []string{"operation"}),
		jobsRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recsync_jobs_retried_total",
			Help: "Write job attempts rescheduled after a transport error",
		}, []string{"operation"}),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recsync_jobs_in_flight",
			Help: "Write jobs currently being dispatched",
		}),
		jobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recsync_job_latency_seconds",
			Help:    "Time from submission to a terminal state",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recsync_http_requests_total",
			Help: "Physical HTTP calls to the recommendation service",
		}, []string{"operation", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recsync_http_request_duration_seconds",
			Help:    "Recommendation service call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recsync_fetch_fallbacks_total",
			Help: "Recommendation fetches answered by the local fallback",
		}, []string{"operation", "reason"}),
		shortfalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recsync_fetch_shortfalls_total",
			Help: "Recommendation fetches that returned fewer exercises than requested",
		}, []string{"operation"}),
		gatherer: reg,
	}

	reg.MustRegister(
		c.sequenceClaims,
		c.jobsSubmitted, c.jobsCompleted, c.jobsFailed, c.jobsRetried, c.jobsInFlight, c.jobLatency,
		c.httpRequests, c.httpLatency,
		c.fallbacks, c.shortfalls,
	)
	return c
}

// Handler serves the registered metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) RecordClaim(entity string) {
	if c == nil {
		return
	}
	c.sequenceClaims.WithLabelValues(entity).Inc()
}

func (c *Collector) RecordSubmitted(operation string) {
	if c == nil {
		return
	}
	c.jobsSubmitted.WithLabelValues(operation).Inc()
}

// RecordCompleted counts a completed job and observes its age in seconds.
func (c *Collector) RecordCompleted(operation string, latencySeconds float64) {
	if c == nil {
		return
	}
	c.jobsCompleted.WithLabelValues(operation).Inc()
	c.jobLatency.WithLabelValues(operation).Observe(latencySeconds)
}

func (c *Collector) RecordFailed(operation string, latencySeconds float64) {
	if c == nil {
		return
	}
	c.jobsFailed.WithLabelValues(operation).Inc()
	c.jobLatency.WithLabelValues(operation).Observe(latencySeconds)
}

func (c *Collector) RecordRetry(operation string) {
	if c == nil {
		return
	}
	c.jobsRetried.WithLabelValues(operation).Inc()
}

// SetInFlight reports the number of jobs being dispatched.
func (c *Collector) SetInFlight(n int) {
	if c == nil {
		return
	}
	c.jobsInFlight.Set(float64(n))
}

// RecordHTTP counts one physical call. code is the HTTP status, or "error"
// when no response was received.
func (c *Collector) RecordHTTP(operation, code string, seconds float64) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(operation, code).Inc()
	c.httpLatency.WithLabelValues(operation).Observe(seconds)
}

func (c *Collector) RecordFallback(operation, reason string) {
	if c == nil {
		return
	}
	c.fallbacks.WithLabelValues(operation, reason).Inc()
}

func (c *Collector) RecordShortfall(operation string) {
	if c == nil {
		return
	}
	c.shortfalls.WithLabelValues(operation).Inc()
}
