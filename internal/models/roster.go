package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day layout used on the wire and in draft keys.
const DateLayout = "2006-01-02"

// ErrInvalidRosterKey is returned when a roster key cannot be constructed.
var ErrInvalidRosterKey = errors.New("invalid roster key")

// Workflow identifies which annotation screen a draft belongs to.
type Workflow string

const (
	WorkflowAttendance Workflow = "attendance"
	WorkflowGrades     Workflow = "grades"
)

// Valid returns true for supported workflows.
func (w Workflow) Valid() bool {
	return w == WorkflowAttendance || w == WorkflowGrades
}

// Gated reports whether submissions in this workflow require a prerequisite.
func (w Workflow) Gated() bool {
	return w == WorkflowGrades
}

// RosterKey scopes every draft and submission to a course offering on a
// calendar day. The zero value is not a valid key.
type RosterKey struct {
	courseOfferingID string
	date             time.Time
}

// NewRosterKey builds a key, truncating date to its calendar day.
func NewRosterKey(courseOfferingID string, date time.Time) (RosterKey, error) {
	courseOfferingID = strings.TrimSpace(courseOfferingID)
	if courseOfferingID == "" {
		return RosterKey{}, fmt.Errorf("%w: course offering id required", ErrInvalidRosterKey)
	}
	if date.IsZero() {
		return RosterKey{}, fmt.Errorf("%w: date required", ErrInvalidRosterKey)
	}
	y, m, d := date.Date()
	return RosterKey{courseOfferingID: courseOfferingID, date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}, nil
}

// ParseRosterKey builds a key from a YYYY-MM-DD date string.
func ParseRosterKey(courseOfferingID, date string) (RosterKey, error) {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return RosterKey{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidRosterKey)
	}
	return NewRosterKey(courseOfferingID, parsed)
}

// CourseOfferingID returns the course component.
func (k RosterKey) CourseOfferingID() string { return k.courseOfferingID }

// Date returns the calendar day at UTC midnight.
func (k RosterKey) Date() time.Time { return k.date }

// DateString renders the day as YYYY-MM-DD.
func (k RosterKey) DateString() string {
	if k.date.IsZero() {
		return ""
	}
	return k.date.Format(DateLayout)
}

// IsZero reports whether the key was never constructed.
func (k RosterKey) IsZero() bool { return k.courseOfferingID == "" }

// Equal compares course id and calendar day.
func (k RosterKey) Equal(other RosterKey) bool {
	return k.courseOfferingID == other.courseOfferingID && k.date.Equal(other.date)
}

func (k RosterKey) String() string {
	return k.courseOfferingID + ":" + k.DateString()
}

// RosterEntity is a student on the roster as returned by the Roster Service.
type RosterEntity struct {
	EntityID       string               `json:"entity_id"`
	Name           string               `json:"name"`
	ExternalNumber string               `json:"external_number,omitempty"`
	Annotation     *CommittedAnnotation `json:"annotation,omitempty"`
}

// CommittedAnnotation is the value the server already holds for the key.
type CommittedAnnotation struct {
	Value AnnotationValue `json:"value"`
	Notes string          `json:"notes"`
}

// PrerequisiteStatus describes whether attendance exists for a key and, if
// so, each student's recorded attendance.
type PrerequisiteStatus struct {
	Exists    bool                        `json:"exists"`
	PerEntity map[string]AttendanceStatus `json:"per_entity,omitempty"`
}

// StateOf returns the recorded state for an entity.
func (p *PrerequisiteStatus) StateOf(entityID string) (AttendanceStatus, bool) {
	if p == nil || p.PerEntity == nil {
		return "", false
	}
	state, ok := p.PerEntity[entityID]
	return state, ok
}
