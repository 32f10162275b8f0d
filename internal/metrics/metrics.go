package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "herald"

// Scope label values. Dynamic topic names are unbounded, so topics are
// labelled by scope rather than by name.
const (
	ScopeCore    = "core"
	ScopeDynamic = "dynamic"
)

// Metrics holds the Prometheus collectors for the topic subsystem.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	published       *prometheus.CounterVec
	publishErrors   *prometheus.CounterVec
	received        *prometheus.CounterVec
	decodeErrors    *prometheus.CounterVec
	handlerErrors   *prometheus.CounterVec
	dynamicTopics   prometheus.Gauge
	evicted         prometheus.Counter
	cleanupRuns     *prometheus.CounterVec
	cleanupDuration prometheus.Histogram
	jobRuns         *prometheus.CounterVec
	events          *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pubsub",
			Name:      "messages_published_total",
			Help:      "Messages handed to the broker.",
		}, []string{"scope"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pubsub",
			Name:      "publish_errors_total",
			Help:      "Publish calls that failed.",
		}, []string{"scope"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pubsub",
			Name:      "messages_received_total",
			Help:      "Messages delivered to subscriber handlers.",
		}, []string{"scope"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pubsub",
			Name:      "deserialization_errors_total",
			Help:      "Inbound payloads that were not valid JSON.",
		}, []string{"scope"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pubsub",
			Name:      "handler_errors_total",
			Help:      "Handler invocations that returned an error or panicked.",
		}, []string{"scope"}),
		dynamicTopics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "topics",
			Name:      "dynamic",
			Help:      "Dynamic topics currently registered.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "topics",
			Name:      "evicted_total",
			Help:      "Dynamic topics removed by cleanup.",
		}),
		cleanupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "runs_total",
			Help:      "Cleanup runs by outcome.",
		}, []string{"result"}),
		cleanupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "run_duration_seconds",
			Help:      "Duration of cleanup runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_runs_total",
			Help:      "Cron job executions by job and outcome.",
		}, []string{"job", "success"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "background",
			Name:      "events_processed_total",
			Help:      "Typed events processed by background handlers.",
		}, []string{"type", "success"}),
	}

	m.registry.MustRegister(
		m.published,
		m.publishErrors,
		m.received,
		m.decodeErrors,
		m.handlerErrors,
		m.dynamicTopics,
		m.evicted,
		m.cleanupRuns,
		m.cleanupDuration,
		m.jobRuns,
		m.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the Prometheus registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler exposing the registered metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Scope returns the scope label for a topic.
func Scope(isCore bool) string {
	if isCore {
		return ScopeCore
	}
	return ScopeDynamic
}

func (m *Metrics) Published(scope string) {
	if m != nil {
		m.published.WithLabelValues(scope).Inc()
	}
}

func (m *Metrics) PublishFailed(scope string) {
	if m != nil {
		m.publishErrors.WithLabelValues(scope).Inc()
	}
}

func (m *Metrics) Received(scope string) {
	if m != nil {
		m.received.WithLabelValues(scope).Inc()
	}
}

func (m *Metrics) DecodeFailed(scope string) {
	if m != nil {
		m.decodeErrors.WithLabelValues(scope).Inc()
	}
}

func (m *Metrics) HandlerFailed(scope string) {
	if m != nil {
		m.handlerErrors.WithLabelValues(scope).Inc()
	}
}

// SetDynamicTopics records the current number of dynamic topics.
func (m *Metrics) SetDynamicTopics(n int) {
	if m != nil {
		m.dynamicTopics.Set(float64(n))
	}
}

// CleanupFinished records one cleanup run.
func (m *Metrics) CleanupFinished(result string, evicted int, took time.Duration) {
	if m == nil {
		return
	}
	m.cleanupRuns.WithLabelValues(result).Inc()
	m.evicted.Add(float64(evicted))
	m.cleanupDuration.Observe(took.Seconds())
}

// JobRun records one cron job execution.
func (m *Metrics) JobRun(job string, success bool) {
	if m != nil {
		m.jobRuns.WithLabelValues(job, boolLabel(success)).Inc()
	}
}

// EventProcessed records one typed event handled in the background.
func (m *Metrics) EventProcessed(eventType string, success bool) {
	if m != nil {
		m.events.WithLabelValues(eventType, boolLabel(success)).Inc()
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
