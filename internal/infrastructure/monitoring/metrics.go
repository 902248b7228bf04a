package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Application metrics
	AppsRegistered prometheus.Gauge

	// Operation metrics
	OperationCalls    *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Resumption metrics
	ResumptionsStarted *prometheus.CounterVec
	ResumptionOutcomes *prometheus.CounterVec
	PendingResumptions prometheus.Gauge
	SavedRecords       prometheus.Gauge

	// HMI metrics
	HMIRequests *prometheus.CounterVec

	// Persistence metrics
	Flushes *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests int64 `json:"total_requests"`
	TotalErrors   int64 `json:"total_errors"`
	Resumed       int64 `json:"resumed"`
	Aborted       int64 `json:"aborted"`
	HMIFailures   int64 `json:"hmi_failures"`
	FailedFlushes int64 `json:"failed_flushes"`
}

// NewMetrics creates a new metrics collector registered on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headunit_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "headunit_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// Application metrics
		AppsRegistered: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "headunit_apps_registered",
				Help: "Number of registered applications",
			},
		),

		// Operation metrics
		OperationCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headunit_operation_calls_total",
				Help: "Total number of timed component operations",
			},
			[]string{"component", "operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "headunit_operation_duration_seconds",
				Help:    "Component operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"component", "operation"},
		),

		// Resumption metrics
		ResumptionsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headunit_resumptions_started_total",
				Help: "Total number of resumptions started",
			},
			[]string{"mode"},
		),
		ResumptionOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headunit_resumption_outcomes_total",
				Help: "Total number of finished resumptions by outcome",
			},
			[]string{"outcome"},
		),
		PendingResumptions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "headunit_resumptions_pending",
				Help: "Number of applications waiting for HMI level restoration",
			},
		),
		SavedRecords: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "headunit_resumption_records",
				Help: "Number of saved resumption records",
			},
		),

		// HMI metrics
		HMIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headunit_hmi_requests_total",
				Help: "Total number of HMI requests by method and result",
			},
			[]string{"method", "result"},
		),

		// Persistence metrics
		Flushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headunit_persistence_flushes_total",
				Help: "Total number of persistent store flushes",
			},
			[]string{"status"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "headunit_uptime_seconds",
			Help: "Backend uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordOperation records a timed component operation
func (m *Metrics) RecordOperation(component, operation, status string, duration time.Duration) {
	m.OperationCalls.WithLabelValues(component, operation, status).Inc()
	m.OperationDuration.WithLabelValues(component, operation).Observe(duration.Seconds())
}

// SetAppsRegistered sets the number of registered applications
func (m *Metrics) SetAppsRegistered(count int) {
	m.AppsRegistered.Set(float64(count))
}

// IncResumptionStarted counts a resumption of the given mode ("full", "hmi_level")
func (m *Metrics) IncResumptionStarted(mode string) {
	m.ResumptionsStarted.WithLabelValues(mode).Inc()
}

// IncResumptionOutcome counts a finished resumption ("resumed", "aborted", "cancelled")
func (m *Metrics) IncResumptionOutcome(outcome string) {
	m.ResumptionOutcomes.WithLabelValues(outcome).Inc()

	m.mu.Lock()
	switch outcome {
	case "resumed":
		m.snapshot.Resumed++
	case "aborted":
		m.snapshot.Aborted++
	}
	m.mu.Unlock()
}

// SetPendingResumptions sets the number of pending HMI level restorations
func (m *Metrics) SetPendingResumptions(count int) {
	m.PendingResumptions.Set(float64(count))
}

// SetSavedRecords sets the number of saved resumption records
func (m *Metrics) SetSavedRecords(count int) {
	m.SavedRecords.Set(float64(count))
}

// RecordHMIRequest records the outcome of an HMI request
func (m *Metrics) RecordHMIRequest(method, result string) {
	m.HMIRequests.WithLabelValues(method, result).Inc()
	if result != "SUCCESS" && result != "WARNINGS" && result != "SENT" {
		m.mu.Lock()
		m.snapshot.HMIFailures++
		m.mu.Unlock()
	}
}

// RecordFlush records a persistent store flush
func (m *Metrics) RecordFlush(status string) {
	m.Flushes.WithLabelValues(status).Inc()
	if status == "error" {
		m.mu.Lock()
		m.snapshot.FailedFlushes++
		m.mu.Unlock()
	}
}

// Snapshot returns the current values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Uptime returns how long the collector has existed
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
