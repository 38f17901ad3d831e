package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
)

func TestGateAuthorizeSubmission(t *testing.T) {
	gate := NewPrerequisiteGate(&rosterServiceStub{}, nil, nil)
	key := mustKey(t, "course 1", "2024-03-01")

	assert.NoError(t, gate.AuthorizeSubmission(key, models.PrerequisiteStatus{Exists: true}))

	err := gate.AuthorizeSubmission(key, models.PrerequisiteStatus{Exists: false})
	require.True(t, errors.Is(err, appErrors.ErrPrerequisiteMissing))
	block, ok := appErrors.FromError(err).Details.(models.GateBlock)
	require.True(t, ok)
	assert.Equal(t, "course 1", block.CourseOfferingID)
	assert.Equal(t, "2024-03-01", block.Date)
	assert.Equal(t, models.WorkflowAttendance, block.Prerequisite)
	assert.Equal(t, "/attendance?course_offering_id=course+1&date=2024-03-01", block.RemedyPath)
}

func TestGateCheckIsNeverCached(t *testing.T) {
	roster := &rosterServiceStub{prerequisite: models.PrerequisiteStatus{Exists: true}}
	gate := NewPrerequisiteGate(roster, nil, nil)
	key := mustKey(t, "course-1", "2024-03-01")

	for i := 0; i < 3; i++ {
		_, err := gate.Check(context.Background(), key)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, roster.prereqCalls)
}

func TestSubmitWithNothingAnnotated(t *testing.T) {
	e := newEngine(t, &rosterServiceStub{})
	scope := attendanceScope(t)

	_, err := e.coordinator.Submit(context.Background(), scope, models.WorkingSet{"S1": record("S1", models.Unset(), "note only")}, nil)
	assert.True(t, errors.Is(err, appErrors.ErrNothingToSubmit))
	assert.Equal(t, models.SubmissionIdle, e.coordinator.State(scope))
	assert.Equal(t, 0, e.roster.batchCount())
}

func TestSubmitSuccessClearsDraft(t *testing.T) {
	e := newEngine(t, &rosterServiceStub{})
	scope := attendanceScope(t)
	ws := models.WorkingSet{
		"S2": record("S2", late(), "traffic"),
		"S1": record("S1", present(), ""),
		"S3": record("S3", models.Unset(), ""),
	}
	require.NoError(t, e.drafts.Save(context.Background(), scope, ws))

	var states []models.SubmissionState
	outcome, err := e.coordinator.Submit(context.Background(), scope, ws, func(s models.SubmissionState) { states = append(states, s) })
	require.NoError(t, err)

	assert.Equal(t, models.SubmissionSucceeded, outcome.State)
	assert.Equal(t, 2, outcome.Submitted)
	assert.True(t, outcome.DraftCleared)
	assert.True(t, outcome.RefreshRequired)
	assert.Empty(t, e.drafts.Load(context.Background(), scope))
	assert.Equal(t, []models.SubmissionState{models.SubmissionValidating, models.SubmissionSubmitting, models.SubmissionSucceeded}, states)

	require.Equal(t, 1, e.roster.batchCount())
	batch := e.roster.batches[0]
	assert.Equal(t, "course-1", batch.CourseOfferingID)
	assert.Equal(t, "2024-03-01", batch.Date)
	require.Len(t, batch.Records, 2)
	assert.Equal(t, "S1", batch.Records[0].EntityID)
	assert.Equal(t, "S2", batch.Records[1].EntityID)
	assert.Equal(t, "traffic", batch.Records[1].Notes)
	assert.Equal(t, 0, e.roster.prereqCalls, "attendance is never gated")

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.submissions.WithLabelValues("attendance", OutcomeSucceeded)))
}

func TestSubmitPartialAcceptanceStillClearsDraft(t *testing.T) {
	roster := &rosterServiceStub{result: models.BatchResult{
		AcceptedCount: 1,
		Skipped:       []models.SkippedEntity{{EntityID: "S2", Reason: "student withdrawn"}},
	}}
	e := newEngine(t, roster)
	scope := attendanceScope(t)
	ws := models.WorkingSet{
		"S1": record("S1", present(), ""),
		"S2": record("S2", late(), "traffic"),
	}
	require.NoError(t, e.drafts.Save(context.Background(), scope, ws))

	outcome, err := e.coordinator.Submit(context.Background(), scope, ws, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Accepted)
	require.Len(t, outcome.Skipped, 1)
	assert.Equal(t, "student withdrawn", outcome.Skipped[0].Reason)
	assert.Equal(t, record("S2", late(), "traffic"), outcome.Skipped[0].Record)
	assert.Empty(t, e.drafts.Load(context.Background(), scope))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.submissions.WithLabelValues("attendance", OutcomePartial)))
}

func TestSubmitTransportErrorPreservesDraft(t *testing.T) {
	for name, submitErr := range map[string]error{
		"transport": appErrors.Wrap(errTransport, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "roster service unavailable"),
		"timeout":   appErrors.Wrap(context.DeadlineExceeded, appErrors.ErrUpstreamTimeout.Code, appErrors.ErrUpstreamTimeout.Status, "timed out"),
	} {
		t.Run(name, func(t *testing.T) {
			e := newEngine(t, &rosterServiceStub{submitErr: submitErr})
			scope := attendanceScope(t)
			ws := models.WorkingSet{"S1": record("S1", present(), "")}
			require.NoError(t, e.drafts.Save(context.Background(), scope, ws))
			before := e.drafts.Load(context.Background(), scope)

			outcome, err := e.coordinator.Submit(context.Background(), scope, ws, nil)
			require.Error(t, err)
			assert.Nil(t, outcome)
			assert.Equal(t, submitErr, err)
			assert.Equal(t, models.SubmissionFailed, e.coordinator.State(scope))
			assert.Equal(t, before, e.drafts.Load(context.Background(), scope))
		})
	}
}

func TestGradeSubmissionBlockedWithoutAttendance(t *testing.T) {
	e := newEngine(t, &rosterServiceStub{prerequisite: models.PrerequisiteStatus{Exists: false}})
	scope := gradesScope(t)
	ws := models.WorkingSet{
		"S1": record("S1", models.GradeValue(88), ""),
		"S2": record("S2", models.GradeValue(71.5), "retake"),
	}
	require.NoError(t, e.drafts.Save(context.Background(), scope, ws))

	var states []models.SubmissionState
	_, err := e.coordinator.Submit(context.Background(), scope, ws, func(s models.SubmissionState) { states = append(states, s) })

	require.True(t, errors.Is(err, appErrors.ErrPrerequisiteMissing))
	assert.Equal(t, 0, e.roster.batchCount(), "submit_batch must not be called")
	assert.Equal(t, ws, e.drafts.Load(context.Background(), scope))
	assert.Equal(t, models.SubmissionFailed, e.coordinator.State(scope))
	assert.Equal(t, []models.SubmissionState{models.SubmissionValidating, models.SubmissionGating, models.SubmissionFailed}, states)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.gateChecks.WithLabelValues("blocked")))
}

func TestGradeSubmissionPrerequisiteFetchFailure(t *testing.T) {
	fetchErr := appErrors.Clone(appErrors.ErrUpstream, "down")
	e := newEngine(t, &rosterServiceStub{prereqErr: fetchErr})
	scope := gradesScope(t)
	ws := models.WorkingSet{"S1": record("S1", models.GradeValue(88), "")}
	require.NoError(t, e.drafts.Save(context.Background(), scope, ws))

	_, err := e.coordinator.Submit(context.Background(), scope, ws, nil)
	assert.True(t, errors.Is(err, appErrors.ErrUpstream))
	assert.Equal(t, 0, e.roster.batchCount())
	assert.Equal(t, ws, e.drafts.Load(context.Background(), scope))
}

func TestGradeSubmissionAllowedWithAttendance(t *testing.T) {
	e := newEngine(t, &rosterServiceStub{prerequisite: models.PrerequisiteStatus{Exists: true}})
	scope := gradesScope(t)
	ws := models.WorkingSet{"S1": record("S1", models.GradeValue(88), "")}

	outcome, err := e.coordinator.Submit(context.Background(), scope, ws, nil)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionSucceeded, outcome.State)
	assert.Equal(t, 1, e.roster.prereqCalls)
	assert.Equal(t, 1, e.roster.batchCount())
}

func TestSubmitRejectsReentry(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	roster := &rosterServiceStub{}
	var once sync.Once
	roster.submitHook = func() {
		once.Do(func() { close(entered) })
		<-release
	}
	e := newEngine(t, roster)
	scope := attendanceScope(t)
	ws := models.WorkingSet{"S1": record("S1", present(), "")}

	done := make(chan error, 1)
	go func() {
		_, err := e.coordinator.Submit(context.Background(), scope, ws, nil)
		done <- err
	}()
	<-entered

	assert.Equal(t, models.SubmissionSubmitting, e.coordinator.State(scope))
	_, err := e.coordinator.Submit(context.Background(), scope, ws, nil)
	assert.True(t, errors.Is(err, appErrors.ErrSubmissionInFlight))

	other := models.DraftScope{Workflow: models.WorkflowAttendance, Key: mustKey(t, "course-2", "2024-03-01")}
	roster.mu.Lock()
	roster.submitHook = nil
	roster.mu.Unlock()
	_, err = e.coordinator.Submit(context.Background(), other, ws, nil)
	assert.NoError(t, err, "other keys are independent")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 2, roster.batchCount())

	_, err = e.coordinator.Submit(context.Background(), scope, ws, nil)
	assert.NoError(t, err, "a finished submission does not block the next one")
}

func TestPruneForgetsFinishedSubmissions(t *testing.T) {
	e := newEngine(t, &rosterServiceStub{})
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	e.coordinator.now = func() time.Time { return start }

	done := attendanceScope(t)
	_, err := e.coordinator.Submit(context.Background(), done, models.WorkingSet{"S1": record("S1", present(), "")}, nil)
	require.NoError(t, err)

	e.roster.submitErr = errTransport
	failed := models.DraftScope{Workflow: models.WorkflowAttendance, Key: mustKey(t, "course-2", "2024-03-01")}
	e.coordinator.now = func() time.Time { return start.Add(time.Hour) }
	_, err = e.coordinator.Submit(context.Background(), failed, models.WorkingSet{"S1": record("S1", present(), "")}, nil)
	require.Error(t, err)

	assert.Equal(t, 1, e.coordinator.Prune(start.Add(30*time.Minute)))
	assert.Equal(t, models.SubmissionIdle, e.coordinator.State(done))
	assert.Equal(t, models.SubmissionFailed, e.coordinator.State(failed))

	assert.Equal(t, 1, e.coordinator.Prune(start.Add(2*time.Hour)))
	assert.Equal(t, models.SubmissionIdle, e.coordinator.State(failed))
	assert.Empty(t, e.coordinator.states)
}
