package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics contains Prometheus metrics for encounter table operations and
// the HTTP surface in front of them.
//
// A nil *EngineMetrics is valid; every Record method is a no-op on it.
type EngineMetrics struct {
	registry *prometheus.Registry

	// Engine operation metrics
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	// Roll metrics
	rollsTotal      *prometheus.CounterVec
	integrityFaults *prometheus.CounterVec

	// Slug and sharing metrics
	slugCollisions   prometheus.Counter
	slugExhaustions  prometheus.Counter
	copyCompensation *prometheus.CounterVec

	// Public read cache
	publicCache *prometheus.CounterVec

	// HTTP request metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewEngineMetrics creates and registers engine metrics on registry.
//
// Precondition: registry must be non-nil and must not already hold engine metrics.
// Postcondition: Returns registered metrics or a non-nil error.
func NewEngineMetrics(registry *prometheus.Registry) (*EngineMetrics, error) {
	m := &EngineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *EngineMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encounter_operations_total",
			Help: "Total number of encounter table operations",
		},
		[]string{"operation", "status"}, // operation: create, roll, share, copy; status: success, error kind
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "encounter_operation_duration_seconds",
			Help:    "Time taken for encounter table operations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	m.rollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encounter_rolls_total",
			Help: "Total number of resolved rolls",
		},
		[]string{"visibility"}, // private, public
	)

	m.integrityFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encounter_integrity_faults_total",
			Help: "Rolls that landed on a roll number with no stored entry",
		},
		[]string{"operation"},
	)

	m.slugCollisions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "encounter_slug_collisions_total",
			Help: "Generated public slugs that were already in use",
		},
	)

	m.slugExhaustions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "encounter_slug_exhaustions_total",
			Help: "Slug allocations that ran out of attempts",
		},
	)

	m.copyCompensation = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encounter_copy_compensations_total",
			Help: "Copies rolled back by deleting the partially created table",
		},
		[]string{"status"}, // success, error
	)

	m.publicCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encounter_public_cache_requests_total",
			Help: "Public table cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Time taken for HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
}

func (m *EngineMetrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.rollsTotal,
		m.integrityFaults,
		m.slugCollisions,
		m.slugExhaustions,
		m.copyCompensation,
		m.publicCache,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	}
}

// Describe implements the Collector interface
func (m *EngineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.getCollectors() {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *EngineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.getCollectors() {
		collector.Collect(ch)
	}
}

// RecordOperation records the outcome and duration of an engine operation.
func (m *EngineMetrics) RecordOperation(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordRoll counts a resolved roll.
func (m *EngineMetrics) RecordRoll(public bool) {
	if m == nil {
		return
	}
	visibility := "private"
	if public {
		visibility = "public"
	}
	m.rollsTotal.WithLabelValues(visibility).Inc()
}

// RecordIntegrityFault counts a roll that found no entry for its roll number.
func (m *EngineMetrics) RecordIntegrityFault(operation string) {
	if m == nil {
		return
	}
	m.integrityFaults.WithLabelValues(operation).Inc()
}

// RecordSlugCollision counts a generated slug that was already taken.
func (m *EngineMetrics) RecordSlugCollision() {
	if m == nil {
		return
	}
	m.slugCollisions.Inc()
}

// RecordSlugExhaustion counts an allocation that used every attempt.
func (m *EngineMetrics) RecordSlugExhaustion() {
	if m == nil {
		return
	}
	m.slugExhaustions.Inc()
}

// RecordCopyCompensation counts a compensating delete after a failed copy.
func (m *EngineMetrics) RecordCopyCompensation(ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	m.copyCompensation.WithLabelValues(status).Inc()
}

// RecordPublicCache counts a public cache lookup.
func (m *EngineMetrics) RecordPublicCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.publicCache.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request outcome.
func (m *EngineMetrics) RecordHTTPRequest(method, path string, statusCode int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(seconds)
}
