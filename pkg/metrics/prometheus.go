// Package metrics provides Prometheus metrics for the contest checker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector the service registers.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Arbitration pipeline
	submissionsTotal  *prometheus.CounterVec
	shortCircuits     *prometheus.CounterVec
	evaluatorCalls    prometheus.Counter
	evaluatorLatency  prometheus.Histogram
	evaluatorErrors   prometheus.Counter
	credentialGrants  prometheus.Counter

	// Award allocation
	awardsIssued        prometheus.Counter
	allocationConflicts prometheus.Counter
	poolExhausted       prometheus.Counter

	// Store
	storeLatency  *prometheus.HistogramVec
	storeConflicts prometheus.Counter

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimited         prometheus.Counter

	// Change feed / notifier
	feedQueueSize      prometheus.Gauge
	feedQueueCapacity  prometheus.Gauge
	feedEnqueues       prometheus.Counter
	feedDequeues       prometheus.Counter
	feedDropped        prometheus.Counter
	notifierDeliveries prometheus.Counter
	notifierDuplicates prometheus.Counter
	notifierErrors     prometheus.Counter
	workerCount        prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid the default Go collectors.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // singleton registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace overrides the metric namespace.
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

// WithSubsystem overrides the metric subsystem.
func WithSubsystem(sub string) Option {
	return func(m *Manager) {
		if sub != "" {
			m.subsystem = sub
		}
	}
}

// WithHistogramBuckets overrides the default latency buckets.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithRegistry registers collectors on a specific registry.
func WithRegistry(r prometheus.Registerer) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// WithEnabled toggles metric recording.
func WithEnabled(enabled bool) Option {
	return func(m *Manager) {
		m.enabled = enabled
	}
}

// NewManager creates a metrics manager and registers all collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "contest",
		subsystem:        "checker",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	factory := promauto.With(m.registry)

	m.submissionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "submissions_total",
		Help:      "Submissions arbitrated, labeled by final outcome.",
	}, []string{"outcome"})

	m.shortCircuits = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "submission_short_circuits_total",
		Help:      "Submissions answered from a cached terminal status.",
	}, []string{"status"})

	m.evaluatorCalls = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "evaluator_invocations_total",
		Help:      "Synchronous evaluator invocations dispatched.",
	})

	m.evaluatorLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "evaluator_latency_ms",
		Help:      "Evaluator round-trip latency in milliseconds.",
		Buckets:   m.histogramBuckets,
	})

	m.evaluatorErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "evaluator_errors_total",
		Help:      "Evaluator transport or reported failures.",
	})

	m.credentialGrants = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "credential_exchanges_total",
		Help:      "Delegated-role credential exchanges performed.",
	})

	m.awardsIssued = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "awards_issued_total",
		Help:      "Award codes committed to winning submissions.",
	})

	m.allocationConflicts = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "award_allocation_conflicts_total",
		Help:      "Pass commits lost to a concurrent writer and downgraded.",
	})

	m.poolExhausted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "award_pool_exhausted_total",
		Help:      "Winning submissions that found an empty award pool.",
	})

	m.storeLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_latency_ms",
		Help:      "Store operation latency in milliseconds.",
		Buckets:   m.histogramBuckets,
	}, []string{"op"})

	m.storeConflicts = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_conditional_conflicts_total",
		Help:      "Conditional writes rejected by the store.",
	})

	m.httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint, method and status code.",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request duration in milliseconds.",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.rateLimited = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_rate_limited_total",
		Help:      "Requests rejected by the ingress rate limiter.",
	})

	m.feedQueueSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feed_queue_size",
		Help:      "Change records currently buffered in the feed queue.",
	})

	m.feedQueueCapacity = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feed_queue_capacity",
		Help:      "Configured capacity of the feed queue.",
	})

	m.feedEnqueues = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feed_enqueues_total",
		Help:      "Change records accepted into the feed queue.",
	})

	m.feedDequeues = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feed_dequeues_total",
		Help:      "Change records handed to notification workers.",
	})

	m.feedDropped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feed_dropped_total",
		Help:      "Change records dropped because the feed queue was full.",
	})

	m.notifierDeliveries = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notifier_deliveries_total",
		Help:      "Notifications published for pass/out_of_stock rows.",
	})

	m.notifierDuplicates = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notifier_duplicates_total",
		Help:      "Duplicate deliveries suppressed by the dedupe cache.",
	})

	m.notifierErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notifier_errors_total",
		Help:      "Failed notification publishes.",
	})

	m.workerCount = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notification_workers",
		Help:      "Notification workers currently running.",
	})
}

// Package-level helpers recording against the global manager.

func RecordSubmission(outcome string) {
	if globalManager.enabled {
		globalManager.submissionsTotal.WithLabelValues(outcome).Inc()
	}
}

func RecordShortCircuit(status string) {
	if globalManager.enabled {
		globalManager.shortCircuits.WithLabelValues(status).Inc()
	}
}

func RecordEvaluatorCall() {
	if globalManager.enabled {
		globalManager.evaluatorCalls.Inc()
	}
}

func RecordEvaluatorLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.evaluatorLatency.Observe(latencyMs)
	}
}

func RecordEvaluatorError() {
	if globalManager.enabled {
		globalManager.evaluatorErrors.Inc()
	}
}

func RecordCredentialExchange() {
	if globalManager.enabled {
		globalManager.credentialGrants.Inc()
	}
}

func RecordAwardIssued() {
	if globalManager.enabled {
		globalManager.awardsIssued.Inc()
	}
}

func RecordAllocationConflict() {
	if globalManager.enabled {
		globalManager.allocationConflicts.Inc()
	}
}

func RecordPoolExhausted() {
	if globalManager.enabled {
		globalManager.poolExhausted.Inc()
	}
}

func RecordStoreLatency(op string, latencyMs float64) {
	if globalManager.enabled {
		globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
	}
}

func RecordStoreConflict() {
	if globalManager.enabled {
		globalManager.storeConflicts.Inc()
	}
}

func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

func RecordRateLimited() {
	if globalManager.enabled {
		globalManager.rateLimited.Inc()
	}
}

func UpdateFeedQueueSize(size int) {
	if globalManager.enabled {
		globalManager.feedQueueSize.Set(float64(size))
	}
}

func UpdateFeedQueueCapacity(capacity int) {
	if globalManager.enabled {
		globalManager.feedQueueCapacity.Set(float64(capacity))
	}
}

func RecordFeedEnqueue() {
	if globalManager.enabled {
		globalManager.feedEnqueues.Inc()
	}
}

func RecordFeedDequeue() {
	if globalManager.enabled {
		globalManager.feedDequeues.Inc()
	}
}

func RecordFeedDropped() {
	if globalManager.enabled {
		globalManager.feedDropped.Inc()
	}
}

func RecordNotifierDelivery() {
	if globalManager.enabled {
		globalManager.notifierDeliveries.Inc()
	}
}

func RecordNotifierDuplicate() {
	if globalManager.enabled {
		globalManager.notifierDuplicates.Inc()
	}
}

func RecordNotifierError() {
	if globalManager.enabled {
		globalManager.notifierErrors.Inc()
	}
}

func UpdateWorkerCount(count int) {
	if globalManager.enabled {
		globalManager.workerCount.Set(float64(count))
	}
}

// GetRegistry exposes the custom registry for the /healthz handler.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
