package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterKeyComparesByCalendarDay(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	morning, err := NewRosterKey("course-1", time.Date(2024, 3, 1, 8, 30, 0, 0, jakarta))
	require.NoError(t, err)
	evening, err := NewRosterKey(" course-1 ", time.Date(2024, 3, 1, 21, 0, 0, 0, jakarta))
	require.NoError(t, err)
	parsed, err := ParseRosterKey("course-1", "2024-03-01")
	require.NoError(t, err)

	assert.True(t, morning.Equal(evening))
	assert.True(t, morning.Equal(parsed))
	assert.Equal(t, morning, parsed)
	assert.Equal(t, "course-1:2024-03-01", parsed.String())

	other, err := ParseRosterKey("course-1", "2024-03-02")
	require.NoError(t, err)
	assert.False(t, parsed.Equal(other))
}

func TestRosterKeyRejectsInvalidInput(t *testing.T) {
	_, err := NewRosterKey("", time.Now())
	assert.True(t, errors.Is(err, ErrInvalidRosterKey))

	_, err = NewRosterKey("course-1", time.Time{})
	assert.True(t, errors.Is(err, ErrInvalidRosterKey))

	_, err = ParseRosterKey("course-1", "01/03/2024")
	assert.True(t, errors.Is(err, ErrInvalidRosterKey))
}

func TestAnnotationValueJSON(t *testing.T) {
	var rec AnnotationRecord
	require.NoError(t, json.Unmarshal([]byte(`{"entity_id":"s1","value":"Late","notes":"bus"}`), &rec))
	status, ok := rec.Value.Status()
	require.True(t, ok)
	assert.Equal(t, AttendanceStatusLate, status)

	require.NoError(t, json.Unmarshal([]byte(`{"entity_id":"s2","value":87.5}`), &rec))
	grade, ok := rec.Value.Grade()
	require.True(t, ok)
	assert.Equal(t, 87.5, grade)

	require.NoError(t, json.Unmarshal([]byte(`{"entity_id":"s3","value":null}`), &rec))
	assert.True(t, rec.Value.IsUnset())

	assert.Error(t, json.Unmarshal([]byte(`{"value":"sleeping"}`), &rec))
	assert.Error(t, json.Unmarshal([]byte(`{"value":true}`), &rec))

	out, err := json.Marshal(AnnotationRecord{EntityID: "s1", Value: GradeValue(90)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"entity_id":"s1","value":90,"notes":""}`, string(out))

	out, err = json.Marshal(AnnotationRecord{EntityID: "s1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"entity_id":"s1","value":null,"notes":""}`, string(out))
}

func TestAnnotationValueFits(t *testing.T) {
	assert.True(t, StatusValue(AttendanceStatusPresent).Fits(WorkflowAttendance))
	assert.False(t, StatusValue(AttendanceStatusPresent).Fits(WorkflowGrades))
	assert.True(t, GradeValue(70).Fits(WorkflowGrades))
	assert.False(t, GradeValue(70).Fits(WorkflowAttendance))
	assert.True(t, Unset().Fits(WorkflowGrades))
}

func TestWorkingSetAnnotatedIsSortedAndSkipsUnset(t *testing.T) {
	ws := WorkingSet{
		"s3": {EntityID: "s3", Value: StatusValue(AttendanceStatusPresent)},
		"s1": {EntityID: "s1", Value: StatusValue(AttendanceStatusAbsent)},
		"s2": {EntityID: "s2", Notes: "no value yet"},
	}

	annotated := ws.Annotated()
	require.Len(t, annotated, 2)
	assert.Equal(t, "s1", annotated[0].EntityID)
	assert.Equal(t, "s3", annotated[1].EntityID)
	assert.Equal(t, 2, ws.AnnotatedCount())
	assert.True(t, ws.HasEdits())
	assert.False(t, WorkingSet{"s1": {EntityID: "s1"}}.HasEdits())
}

func TestDraftDocumentRoundTrip(t *testing.T) {
	key, err := ParseRosterKey("course-1", "2024-03-01")
	require.NoError(t, err)
	scope := DraftScope{Workflow: WorkflowAttendance, Key: key}
	ws := WorkingSet{"s1": {EntityID: "s1", Value: StatusValue(AttendanceStatusLate), Notes: "traffic"}}

	doc := NewDraftDocument(scope, ws, time.Now())
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded DraftDocument
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, DraftSchemaVersion, decoded.Version)
	assert.True(t, decoded.Matches(scope))
	assert.Equal(t, ws, decoded.WorkingSet())
	assert.Equal(t, "drafts:attendance:course-1:2024-03-01", scope.StorageKey("drafts"))
}
