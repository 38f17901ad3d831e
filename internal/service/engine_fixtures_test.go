package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	"github.com/noah-isme/sma-roster-sync/internal/repository"
)

var errTransport = errors.New("connection refused")

type rosterServiceStub struct {
	mu sync.Mutex

	entities     []models.RosterEntity
	fetchErr     error
	prerequisite models.PrerequisiteStatus
	prereqErr    error
	result       models.BatchResult
	submitErr    error

	fetchCalls  int
	prereqCalls int
	batches     []models.BatchPayload
	// blockFetch, when set, is received from before FetchRoster returns.
	blockFetch chan struct{}
	// afterFetch runs once FetchRoster has its result, before returning.
	afterFetch func()
	// submitHook runs inside SubmitBatch.
	submitHook func()
}

func (r *rosterServiceStub) FetchRoster(ctx context.Context, key models.RosterKey, workflow models.Workflow) ([]models.RosterEntity, error) {
	r.mu.Lock()
	r.fetchCalls++
	block := r.blockFetch
	after := r.afterFetch
	entities := append([]models.RosterEntity(nil), r.entities...)
	err := r.fetchErr
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if after != nil {
		after()
	}
	return entities, err
}

func (r *rosterServiceStub) FetchPrerequisite(ctx context.Context, key models.RosterKey) (models.PrerequisiteStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prereqCalls++
	return r.prerequisite, r.prereqErr
}

func (r *rosterServiceStub) SubmitBatch(ctx context.Context, workflow models.Workflow, payload models.BatchPayload) (models.BatchResult, error) {
	r.mu.Lock()
	hook := r.submitHook
	r.mu.Unlock()
	if hook != nil {
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, payload)
	if r.submitErr != nil {
		return models.BatchResult{}, r.submitErr
	}
	result := r.result
	if result.AcceptedCount == 0 && len(result.Skipped) == 0 {
		result.AcceptedCount = len(payload.Records)
	}
	return result, nil
}

func (r *rosterServiceStub) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

type engine struct {
	repo        *repository.MemoryDraftRepository
	roster      *rosterServiceStub
	drafts      *DraftStore
	reconciler  *RosterReconciler
	bulk        *BulkEditor
	gate        *PrerequisiteGate
	coordinator *SubmissionCoordinator
	events      *EventHub
	sessions    *SessionService
	metrics     *MetricsService
}

func newEngine(t *testing.T, roster *rosterServiceStub) *engine {
	t.Helper()
	logger := zap.NewNop()
	metrics := NewMetricsService()
	repo := repository.NewMemoryDraftRepository("test")
	drafts := NewDraftStore(repo, DraftStoreConfig{}, metrics, logger)
	reconciler := NewRosterReconciler(drafts, logger)
	bulk := NewBulkEditor(drafts, nil, logger)
	gate := NewPrerequisiteGate(roster, metrics, logger)
	coordinator := NewSubmissionCoordinator(gate, roster, drafts, metrics, logger)
	events := NewEventHub(64, logger)
	sessions := NewSessionService(SessionDeps{
		Roster:      roster,
		Drafts:      drafts,
		Reconciler:  reconciler,
		Bulk:        bulk,
		Gate:        gate,
		Coordinator: coordinator,
		Events:      events,
	}, SessionConfig{GradeMin: 0, GradeMax: 100}, nil, metrics, logger)

	return &engine{
		repo:        repo,
		roster:      roster,
		drafts:      drafts,
		reconciler:  reconciler,
		bulk:        bulk,
		gate:        gate,
		coordinator: coordinator,
		events:      events,
		sessions:    sessions,
		metrics:     metrics,
	}
}

func mustKey(t *testing.T, course, date string) models.RosterKey {
	t.Helper()
	key, err := models.ParseRosterKey(course, date)
	require.NoError(t, err)
	return key
}

func attendanceScope(t *testing.T) models.DraftScope {
	return models.DraftScope{Workflow: models.WorkflowAttendance, Key: mustKey(t, "course-1", "2024-03-01")}
}

func gradesScope(t *testing.T) models.DraftScope {
	return models.DraftScope{Workflow: models.WorkflowGrades, Key: mustKey(t, "course-1", "2024-03-01")}
}

func threeStudents() []models.RosterEntity {
	return []models.RosterEntity{
		{EntityID: "S1", Name: "Siti"},
		{EntityID: "S2", Name: "Sari"},
		{EntityID: "S3", Name: "Surya"},
	}
}

func record(id string, value models.AnnotationValue, notes string) models.AnnotationRecord {
	return models.AnnotationRecord{EntityID: id, Value: value, Notes: notes}
}

func present() models.AnnotationValue { return models.StatusValue(models.AttendanceStatusPresent) }
func late() models.AnnotationValue    { return models.StatusValue(models.AttendanceStatusLate) }
