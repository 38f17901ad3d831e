package models

import "time"

// Session event types published on a session's stream.
const (
	EventSessionOpened     = "session.opened"
	EventSelectionChanged  = "selection.changed"
	EventRecordUpdated     = "record.updated"
	EventBulkApplied       = "bulk.applied"
	EventSubmissionState   = "submission.state"
	EventSubmissionOutcome = "submission.outcome"
	EventDraftCleared      = "draft.cleared"
	EventSessionClosed     = "session.closed"
)

// SessionEvent is pushed to websocket subscribers of a session.
type SessionEvent struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	At        time.Time   `json:"at"`
	Data      interface{} `json:"data,omitempty"`
}

// SessionSummary describes an open editing session.
type SessionSummary struct {
	ID               string    `json:"id"`
	Workflow         Workflow  `json:"workflow"`
	Owner            string    `json:"owner"`
	CourseOfferingID string    `json:"course_offering_id,omitempty"`
	Date             string    `json:"date,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	LastActiveAt     time.Time `json:"last_active_at"`
}

// RecordView is one row of the working set as shown to the editor.
type RecordView struct {
	EntityID       string               `json:"entity_id"`
	Name           string               `json:"name"`
	ExternalNumber string               `json:"external_number,omitempty"`
	Value          AnnotationValue      `json:"value"`
	Notes          string               `json:"notes"`
	Committed      *CommittedAnnotation `json:"committed,omitempty"`
	Eligible       bool                 `json:"eligible"`
	Prerequisite   AttendanceStatus     `json:"prerequisite_state,omitempty"`
}

// WorkingSetView is the reconciled record set for the selected key, in
// roster order.
type WorkingSetView struct {
	SessionID        string              `json:"session_id"`
	Workflow         Workflow            `json:"workflow"`
	CourseOfferingID string              `json:"course_offering_id"`
	Date             string              `json:"date"`
	Records          []RecordView        `json:"records"`
	Total            int                 `json:"total"`
	Annotated        int                 `json:"annotated"`
	HasDraft         bool                `json:"has_draft"`
	Prerequisite     *PrerequisiteStatus `json:"prerequisite,omitempty"`
	SubmissionState  SubmissionState     `json:"submission_state"`
}

// BulkEditSummary reports what a bulk edit changed.
type BulkEditSummary struct {
	Applied      int      `json:"applied"`
	SkippedCount int      `json:"skipped_count"`
	Skipped      []string `json:"skipped,omitempty"`
}
