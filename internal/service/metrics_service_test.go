package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	metrics := NewMetricsService()

	metrics.ObserveHTTPRequest(http.MethodGet, "/api/v1/sessions/:id", http.StatusOK, 20*time.Millisecond)
	metrics.ObserveHTTPRequest(http.MethodPost, "/api/v1/sessions/:id/submit", http.StatusBadGateway, 40*time.Millisecond)
	metrics.RecordSubmission(models.WorkflowAttendance, OutcomeSucceeded)
	metrics.RecordSubmission(models.WorkflowGrades, OutcomeBlocked)
	metrics.RecordDraftDiscarded("corrupt")
	metrics.ObserveUpstream("fetch_roster", "ok", 10*time.Millisecond)
	metrics.SetActiveSessions(3)

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(2), snapshot.RequestsTotal)
	assert.InDelta(t, 30.0, snapshot.AverageRequestDurationMs, 0.001)
	assert.Equal(t, uint64(2), snapshot.SubmissionsTotal)
	assert.Equal(t, uint64(1), snapshot.SubmissionsFailed)
	assert.Equal(t, uint64(1), snapshot.DraftsDiscarded)
	assert.Equal(t, uint64(1), snapshot.UpstreamRequests)
	assert.Equal(t, 3, snapshot.ActiveSessions)
	assert.Positive(t, snapshot.Goroutines)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.submissions.WithLabelValues("grades", OutcomeBlocked)))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.activeSessions))
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	metrics := NewMetricsService()
	metrics.RecordGateCheck(false)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `roster_gate_checks_total{result="blocked"} 1`)
	assert.Contains(t, rec.Body.String(), "goroutines_total")
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var metrics *MetricsService
	assert.NotPanics(t, func() {
		metrics.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
		metrics.RecordSubmission(models.WorkflowGrades, OutcomeFailed)
		metrics.RecordGateCheck(true)
		metrics.SetActiveSessions(1)
	})
	assert.Equal(t, models.MetricsSnapshot{}, metrics.Snapshot())

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
