package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

// Submission outcome labels.
const (
	OutcomeSucceeded = "succeeded"
	OutcomePartial   = "partial"
	OutcomeBlocked   = "blocked"
	OutcomeFailed    = "failed"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	draftDuration   *prometheus.HistogramVec
	draftDiscarded  *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	gateChecks      *prometheus.CounterVec
	upstream        *prometheus.HistogramVec
	activeSessions  prometheus.Gauge

	requestCount         uint64
	requestDurationTotal uint64
	submissionCount      uint64
	submissionFailed     uint64
	draftDiscardCount    uint64
	upstreamCount        uint64
	sessionCount         int64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	draftDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roster_draft_operation_seconds",
		Help:    "Latency of draft store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	draftDiscarded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_draft_discarded_total",
		Help: "Persisted drafts treated as empty on load",
	}, []string{"reason"})

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_submissions_total",
		Help: "Batch submissions by workflow and outcome",
	}, []string{"workflow", "outcome"})

	gateChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_gate_checks_total",
		Help: "Prerequisite gate decisions",
	}, []string{"result"})

	upstream := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roster_upstream_request_duration_seconds",
		Help:    "Duration of Roster Service calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roster_active_sessions",
		Help: "Open editing sessions",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, draftDuration, draftDiscarded, submissions, gateChecks, upstream, activeSessions, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		draftDuration:   draftDuration,
		draftDiscarded:  draftDiscarded,
		submissions:     submissions,
		gateChecks:      gateChecks,
		upstream:        upstream,
		activeSessions:  activeSessions,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the private registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveDraftOperation records the latency of a load, save or clear.
func (m *MetricsService) ObserveDraftOperation(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.draftDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordDraftDiscarded counts a persisted draft that was ignored on load.
func (m *MetricsService) RecordDraftDiscarded(reason string) {
	if m == nil {
		return
	}
	m.draftDiscarded.WithLabelValues(reason).Inc()
	atomic.AddUint64(&m.draftDiscardCount, 1)
}

// RecordSubmission counts a finished submission attempt.
func (m *MetricsService) RecordSubmission(workflow models.Workflow, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(string(workflow), outcome).Inc()
	atomic.AddUint64(&m.submissionCount, 1)
	if outcome == OutcomeFailed || outcome == OutcomeBlocked {
		atomic.AddUint64(&m.submissionFailed, 1)
	}
}

// RecordGateCheck counts a prerequisite decision.
func (m *MetricsService) RecordGateCheck(allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "blocked"
	}
	m.gateChecks.WithLabelValues(result).Inc()
}

// ObserveUpstream records the duration of a Roster Service call.
func (m *MetricsService) ObserveUpstream(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(operation, outcome).Observe(duration.Seconds())
	atomic.AddUint64(&m.upstreamCount, 1)
}

// SetActiveSessions publishes the number of open sessions.
func (m *MetricsService) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
	atomic.StoreInt64(&m.sessionCount, int64(n))
}

// Snapshot returns aggregated metrics suitable for the summary endpoint.
func (m *MetricsService) Snapshot() models.MetricsSnapshot {
	if m == nil {
		return models.MetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		SubmissionsTotal:         atomic.LoadUint64(&m.submissionCount),
		SubmissionsFailed:        atomic.LoadUint64(&m.submissionFailed),
		DraftsDiscarded:          atomic.LoadUint64(&m.draftDiscardCount),
		UpstreamRequests:         atomic.LoadUint64(&m.upstreamCount),
		ActiveSessions:           int(atomic.LoadInt64(&m.sessionCount)),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
