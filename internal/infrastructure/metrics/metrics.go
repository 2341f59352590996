// Package metrics exposes Prometheus collectors for the admissions service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "admissions"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Status transitions attempted, by outcome.",
		},
		[]string{"from", "to", "outcome"},
	)

	conflictRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "conflict_retries_total",
			Help:      "Transitions retried after a concurrent modification.",
		},
	)

	auditFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Audit writes that failed and rolled back their operation.",
		},
		[]string{"action"},
	)

	scoringDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "ranking_duration_seconds",
			Help:      "Time spent producing a ranked recommendation list.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"surface"},
	)

	poolCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "pool_cache_lookups_total",
			Help:      "Reference-pool cache lookups, by result.",
		},
		[]string{"result"},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Domain events published on the bus.",
		},
		[]string{"type"},
	)

	eventHandlers = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "handler_duration_seconds",
			Help:      "Duration of event handler executions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"type", "success"},
	)

	jobRuns = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "job_run_duration_seconds",
			Help:      "Duration of scheduled job executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"job", "success"},
	)

	emailDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "email_deliveries_total",
			Help:      "Notification emails handed to the mail relay, by outcome.",
		},
		[]string{"outcome"},
	)

	circuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_open",
			Help:      "1 while the named circuit breaker is open.",
		},
		[]string{"name"},
	)
)

func init() {
	Registry.MustRegister(
		transitions,
		conflictRetries,
		auditFailures,
		scoringDuration,
		poolCache,
		eventsPublished,
		eventHandlers,
		jobRuns,
		emailDeliveries,
		circuitState,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Transition outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeRejected  = "rejected"
	OutcomeForbidden = "forbidden"
	OutcomeError     = "error"
)

// RecordTransition counts a transition attempt.
func RecordTransition(from, to, outcome string) {
	transitions.WithLabelValues(from, to, outcome).Inc()
}

// RecordConflictRetry counts a retried transition.
func RecordConflictRetry() {
	conflictRetries.Inc()
}

// RecordAuditFailure counts an audit write that aborted its operation.
func RecordAuditFailure(action string) {
	auditFailures.WithLabelValues(action).Inc()
}

// ObserveRanking records how long a recommendation surface took.
func ObserveRanking(surface string, d time.Duration) {
	scoringDuration.WithLabelValues(surface).Observe(d.Seconds())
}

// RecordPoolCache counts a reference-pool cache hit or miss.
func RecordPoolCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	poolCache.WithLabelValues(result).Inc()
}

// RecordEventPublished counts a published domain event.
func RecordEventPublished(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}

// ObserveEventHandler records a handler execution.
func ObserveEventHandler(eventType string, d time.Duration, success bool) {
	eventHandlers.WithLabelValues(eventType, boolLabel(success)).Observe(d.Seconds())
}

// RecordJobRun records a scheduled job execution.
func RecordJobRun(job string, d time.Duration, success bool) {
	if job == "" {
		job = "unknown"
	}
	if d <= 0 {
		d = time.Millisecond
	}
	jobRuns.WithLabelValues(job, boolLabel(success)).Observe(d.Seconds())
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Email delivery outcomes.
const (
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
	DeliverySkipped = "circuit_open"
)

// RecordEmailDelivery counts an email handed to the relay.
func RecordEmailDelivery(outcome string) {
	emailDeliveries.WithLabelValues(outcome).Inc()
}

// SetCircuitOpen tracks the state of a circuit breaker.
func SetCircuitOpen(name string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	circuitState.WithLabelValues(name).Set(v)
}
