package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

type valueKind uint8

const (
	valueUnset valueKind = iota
	valueStatus
	valueGrade
)

// AnnotationValue holds either an attendance status or a numeric grade. The
// zero value is unset. It encodes to JSON as null, a string or a number.
type AnnotationValue struct {
	kind   valueKind
	status AttendanceStatus
	grade  float64
}

// Unset returns the empty value.
func Unset() AnnotationValue { return AnnotationValue{} }

// StatusValue wraps an attendance status.
func StatusValue(status AttendanceStatus) AnnotationValue {
	return AnnotationValue{kind: valueStatus, status: status}
}

// GradeValue wraps a numeric grade.
func GradeValue(grade float64) AnnotationValue {
	return AnnotationValue{kind: valueGrade, grade: grade}
}

// IsUnset reports whether nothing has been annotated.
func (v AnnotationValue) IsUnset() bool { return v.kind == valueUnset }

// Status returns the attendance status when the value holds one.
func (v AnnotationValue) Status() (AttendanceStatus, bool) {
	return v.status, v.kind == valueStatus
}

// Grade returns the numeric grade when the value holds one.
func (v AnnotationValue) Grade() (float64, bool) {
	return v.grade, v.kind == valueGrade
}

// Fits reports whether the value's type belongs to the workflow. Unset fits
// every workflow.
func (v AnnotationValue) Fits(w Workflow) bool {
	switch v.kind {
	case valueUnset:
		return true
	case valueStatus:
		return w == WorkflowAttendance && v.status.Valid()
	case valueGrade:
		return w == WorkflowGrades && !math.IsNaN(v.grade) && !math.IsInf(v.grade, 0)
	}
	return false
}

func (v AnnotationValue) String() string {
	switch v.kind {
	case valueStatus:
		return string(v.status)
	case valueGrade:
		return strconv.FormatFloat(v.grade, 'f', -1, 64)
	}
	return ""
}

// MarshalJSON implements json.Marshaler.
func (v AnnotationValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case valueStatus:
		return json.Marshal(string(v.status))
	case valueGrade:
		return json.Marshal(v.grade)
	}
	return []byte("null"), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *AnnotationValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*v = Unset()
		return nil
	}
	if trimmed[0] == '"' {
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		if raw == "" {
			*v = Unset()
			return nil
		}
		status, ok := ParseAttendanceStatus(raw)
		if !ok {
			return fmt.Errorf("unknown attendance status %q", raw)
		}
		*v = StatusValue(status)
		return nil
	}
	var grade float64
	if err := json.Unmarshal(trimmed, &grade); err != nil {
		return fmt.Errorf("annotation value must be a status, a number or null: %w", err)
	}
	*v = GradeValue(grade)
	return nil
}

// AnnotationRecord is the editable unit for one student.
type AnnotationRecord struct {
	EntityID string          `json:"entity_id"`
	Value    AnnotationValue `json:"value"`
	Notes    string          `json:"notes"`
}

// IsAnnotated reports whether the record should be submitted.
func (r AnnotationRecord) IsAnnotated() bool { return !r.Value.IsUnset() }

// WorkingSet maps entity ids to their records. Entity ids are unique by
// construction.
type WorkingSet map[string]AnnotationRecord

// Clone returns a shallow copy safe to mutate.
func (ws WorkingSet) Clone() WorkingSet {
	out := make(WorkingSet, len(ws))
	for id, rec := range ws {
		out[id] = rec
	}
	return out
}

// Annotated returns every record with a value, ordered by entity id.
func (ws WorkingSet) Annotated() []AnnotationRecord {
	out := make([]AnnotationRecord, 0, len(ws))
	for _, rec := range ws {
		if rec.IsAnnotated() {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// AnnotatedCount counts records with a value.
func (ws WorkingSet) AnnotatedCount() int {
	n := 0
	for _, rec := range ws {
		if rec.IsAnnotated() {
			n++
		}
	}
	return n
}

// HasEdits reports whether any record carries a value or a note.
func (ws WorkingSet) HasEdits() bool {
	for _, rec := range ws {
		if rec.IsAnnotated() || rec.Notes != "" {
			return true
		}
	}
	return false
}
