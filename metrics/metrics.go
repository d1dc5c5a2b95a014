// Package metrics provides Prometheus metrics for the pipeline, its
// modules, and the HTTP front-end. Scrapeable at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "llmproxy"

var (
	// RequestsTotal counts pipeline executions by pipeline id and outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of pipeline executions by pipeline id and outcome.",
		},
		[]string{"pipeline_id", "outcome"}, // outcome: success, error
	)

	// RequestDurationSeconds is end-to-end pipeline execution latency.
	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Pipeline execution duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"pipeline_id"},
	)

	// ModuleDurationSeconds is per-module stage latency within a pipeline run.
	ModuleDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "module_duration_seconds",
			Help:      "Per-module stage duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"module"},
	)

	// KeyRotationsTotal counts API key rotations triggered by 401 responses.
	KeyRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_rotations_total",
			Help:      "Total number of upstream API key rotations by provider.",
		},
		[]string{"provider"},
	)

	// TransformationsTotal counts local compensations recorded to a
	// request's transformations log, by kind.
	TransformationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transformations_total",
			Help:      "Total number of local compensations applied, by kind.",
		},
		[]string{"kind"},
	)

	// ConversationQueueDepth is the current number of queued requests
	// summed across all conversations, sampled at enqueue/dequeue time.
	ConversationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversation_queue_depth",
			Help:      "Total number of requests queued across all conversations.",
		},
	)

	// WorkersActive is the number of session-flow workers currently
	// executing a pipeline.
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_active",
			Help:      "Number of session-flow worker slots currently in use.",
		},
	)

	// EndpointHealthy reports 1 when the circuit breaker considers an
	// endpoint eligible for requests, 0 otherwise.
	EndpointHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_healthy",
			Help:      "Whether an upstream endpoint's circuit is closed (1) or open (0).",
		},
		[]string{"endpoint"},
	)
)

// ModuleSnapshot is the uniform getMetrics() surface every component in
// §4.8 exposes: requests processed, average processing time, and error
// rate, tracked in-process for the registry's own reporting (independent
// of whatever the Prometheus counters above aggregate).
type ModuleSnapshot struct {
	RequestsProcessed   int64
	AvgProcessingTimeMs float64
	ErrorRate           float64
}

// ModuleCounters accumulates the raw counts behind a ModuleSnapshot. It is
// safe to embed in a module's state; callers serialize access themselves
// (modules in this codebase are single-goroutine-owned per request).
type ModuleCounters struct {
	processed   int64
	errors      int64
	totalMillis float64
}

// Record registers one completed call against the counters.
func (c *ModuleCounters) Record(d time.Duration, failed bool) {
	c.processed++
	c.totalMillis += float64(d.Milliseconds())
	if failed {
		c.errors++
	}
}

// Snapshot renders the current counters as a ModuleSnapshot.
func (c *ModuleCounters) Snapshot() ModuleSnapshot {
	if c.processed == 0 {
		return ModuleSnapshot{}
	}
	return ModuleSnapshot{
		RequestsProcessed:   c.processed,
		AvgProcessingTimeMs: c.totalMillis / float64(c.processed),
		ErrorRate:           float64(c.errors) / float64(c.processed),
	}
}

// Reset zeroes the counters, used by a module's reset() lifecycle call.
func (c *ModuleCounters) Reset() {
	c.processed = 0
	c.errors = 0
	c.totalMillis = 0
}
