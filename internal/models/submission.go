package models

// SubmissionState tracks a submission through its lifecycle.
type SubmissionState string

const (
	SubmissionIdle       SubmissionState = "idle"
	SubmissionValidating SubmissionState = "validating"
	SubmissionGating     SubmissionState = "gating"
	SubmissionSubmitting SubmissionState = "submitting"
	SubmissionSucceeded  SubmissionState = "succeeded"
	SubmissionFailed     SubmissionState = "failed"
)

// InFlight reports whether the state blocks another submission.
func (s SubmissionState) InFlight() bool {
	return s == SubmissionValidating || s == SubmissionGating || s == SubmissionSubmitting
}

// BatchRecord is one entry of a batch submission.
type BatchRecord struct {
	EntityID string          `json:"entity_id"`
	Value    AnnotationValue `json:"value"`
	Notes    string          `json:"notes"`
}

// BatchPayload carries every annotated record for one roster key.
type BatchPayload struct {
	CourseOfferingID string        `json:"course_offering_id"`
	Date             string        `json:"date"`
	Records          []BatchRecord `json:"records"`
}

// SkippedEntity is a record the server declined to save.
type SkippedEntity struct {
	EntityID string `json:"entity_id"`
	Reason   string `json:"reason"`
}

// BatchResult is the Roster Service's answer to a batch submission.
type BatchResult struct {
	AcceptedCount int             `json:"accepted_count"`
	Skipped       []SkippedEntity `json:"skipped"`
}

// Partial reports whether the server skipped any record.
func (r BatchResult) Partial() bool { return len(r.Skipped) > 0 }

// SkippedRecord pairs a skipped entity with what was submitted for it, so
// callers can offer the edit back for correction.
type SkippedRecord struct {
	EntityID string           `json:"entity_id"`
	Reason   string           `json:"reason"`
	Record   AnnotationRecord `json:"record"`
}

// GateBlock is the structured remedy attached to a blocked grade submission.
type GateBlock struct {
	Workflow         Workflow `json:"workflow"`
	CourseOfferingID string   `json:"course_offering_id"`
	Date             string   `json:"date"`
	Prerequisite     Workflow `json:"prerequisite"`
	RemedyPath       string   `json:"remedy_path"`
}

// SubmissionOutcome summarises a submit call.
type SubmissionOutcome struct {
	State            SubmissionState `json:"state"`
	Workflow         Workflow        `json:"workflow"`
	CourseOfferingID string          `json:"course_offering_id"`
	Date             string          `json:"date"`
	Submitted        int             `json:"submitted"`
	Accepted         int             `json:"accepted"`
	Skipped          []SkippedRecord `json:"skipped,omitempty"`
	DraftCleared     bool            `json:"draft_cleared"`
	RefreshRequired  bool            `json:"refresh_required"`
	Refreshed        bool            `json:"refreshed"`
}
