package models

import "time"

// MetricsSnapshot summarises service activity for the /metrics/summary endpoint.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	SubmissionsTotal         uint64    `json:"submissions_total"`
	SubmissionsFailed        uint64    `json:"submissions_failed"`
	DraftsDiscarded          uint64    `json:"drafts_discarded"`
	UpstreamRequests         uint64    `json:"upstream_requests"`
	ActiveSessions           int       `json:"active_sessions"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
