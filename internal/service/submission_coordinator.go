package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
)

type batchSubmitter interface {
	SubmitBatch(ctx context.Context, workflow models.Workflow, payload models.BatchPayload) (models.BatchResult, error)
}

type draftClearer interface {
	Clear(ctx context.Context, scope models.DraftScope) error
}

type submissionGate interface {
	Check(ctx context.Context, key models.RosterKey) (models.PrerequisiteStatus, error)
	AuthorizeSubmission(key models.RosterKey, status models.PrerequisiteStatus) error
}

// TransitionFunc observes submission state changes.
type TransitionFunc func(state models.SubmissionState)

// SubmissionCoordinator drives one submission per workflow and key through
// validating, gating and submitting. Drafts are cleared only after the
// Roster Service accepts the batch.
type SubmissionCoordinator struct {
	gate      submissionGate
	submitter batchSubmitter
	drafts    draftClearer
	metrics   *MetricsService
	logger    *zap.Logger

	now func() time.Time

	mu     sync.Mutex
	states map[string]submissionEntry
}

type submissionEntry struct {
	state models.SubmissionState
	at    time.Time
}

// NewSubmissionCoordinator constructs a coordinator.
func NewSubmissionCoordinator(gate submissionGate, submitter batchSubmitter, drafts draftClearer, metrics *MetricsService, logger *zap.Logger) *SubmissionCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionCoordinator{
		gate:      gate,
		submitter: submitter,
		drafts:    drafts,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		states:    make(map[string]submissionEntry),
	}
}

// State returns the last known state for scope.
func (c *SubmissionCoordinator) State(scope models.DraftScope) models.SubmissionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.states[scope.StorageKey("")]; ok {
		return entry.state
	}
	return models.SubmissionIdle
}

// Prune forgets succeeded and failed outcomes recorded before cutoff so
// their keys report idle again. In-flight submissions are kept.
func (c *SubmissionCoordinator) Prune(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	pruned := 0
	for id, entry := range c.states {
		if !entry.state.InFlight() && entry.at.Before(cutoff) {
			delete(c.states, id)
			pruned++
		}
	}
	return pruned
}

// Submit sends every annotated record in records for scope. A second call
// for the same scope while one is in flight fails with
// SUBMISSION_IN_FLIGHT. notify may be nil.
func (c *SubmissionCoordinator) Submit(ctx context.Context, scope models.DraftScope, records models.WorkingSet, notify TransitionFunc) (*models.SubmissionOutcome, error) {
	id := scope.StorageKey("")

	c.mu.Lock()
	previous, ok := c.states[id]
	if !ok {
		previous = submissionEntry{state: models.SubmissionIdle}
	}
	if previous.state.InFlight() {
		c.mu.Unlock()
		return nil, appErrors.ErrSubmissionInFlight
	}
	c.states[id] = submissionEntry{state: models.SubmissionValidating, at: c.now()}
	c.mu.Unlock()

	annotated := records.Annotated()
	if len(annotated) == 0 {
		c.restore(id, previous)
		return nil, appErrors.ErrNothingToSubmit
	}
	c.transition(id, models.SubmissionValidating, notify)

	logger := c.logger.With(zap.String("workflow", string(scope.Workflow)), zap.String("roster_key", scope.Key.String()))

	if scope.Workflow.Gated() {
		c.transition(id, models.SubmissionGating, notify)
		status, err := c.gate.Check(ctx, scope.Key)
		if err != nil {
			return nil, c.fail(id, scope, OutcomeFailed, err, notify)
		}
		if err := c.gate.AuthorizeSubmission(scope.Key, status); err != nil {
			logger.Info("grade submission blocked, attendance missing")
			return nil, c.fail(id, scope, OutcomeBlocked, err, notify)
		}
	}

	c.transition(id, models.SubmissionSubmitting, notify)
	payload := buildBatch(scope.Key, annotated)
	result, err := c.submitter.SubmitBatch(ctx, scope.Workflow, payload)
	if err != nil {
		logger.Warn("batch submission failed, draft kept", zap.Error(err))
		return nil, c.fail(id, scope, OutcomeFailed, err, notify)
	}

	outcome := &models.SubmissionOutcome{
		State:            models.SubmissionSucceeded,
		Workflow:         scope.Workflow,
		CourseOfferingID: scope.Key.CourseOfferingID(),
		Date:             scope.Key.DateString(),
		Submitted:        len(payload.Records),
		Accepted:         result.AcceptedCount,
		Skipped:          skippedRecords(result.Skipped, records),
		RefreshRequired:  true,
	}

	// The batch is accepted at this point; a failed clear leaves a stale
	// draft but does not turn the submission into a failure.
	if err := c.drafts.Clear(context.WithoutCancel(ctx), scope); err != nil {
		logger.Error("submission accepted but draft could not be cleared", zap.Error(err))
	} else {
		outcome.DraftCleared = true
	}

	label := OutcomeSucceeded
	if result.Partial() {
		label = OutcomePartial
		logger.Info("batch partially accepted",
			zap.Int("accepted", result.AcceptedCount),
			zap.Int("skipped", len(result.Skipped)),
		)
	}
	c.metrics.RecordSubmission(scope.Workflow, label)
	c.transition(id, models.SubmissionSucceeded, notify)
	return outcome, nil
}

func (c *SubmissionCoordinator) fail(id string, scope models.DraftScope, label string, err error, notify TransitionFunc) error {
	c.metrics.RecordSubmission(scope.Workflow, label)
	c.transition(id, models.SubmissionFailed, notify)
	return err
}

func (c *SubmissionCoordinator) transition(id string, state models.SubmissionState, notify TransitionFunc) {
	c.set(id, state)
	if notify != nil {
		notify(state)
	}
}

func (c *SubmissionCoordinator) set(id string, state models.SubmissionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state == models.SubmissionIdle {
		delete(c.states, id)
		return
	}
	c.states[id] = submissionEntry{state: state, at: c.now()}
}

func (c *SubmissionCoordinator) restore(id string, entry submissionEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry.state == models.SubmissionIdle {
		delete(c.states, id)
		return
	}
	c.states[id] = entry
}

func buildBatch(key models.RosterKey, annotated []models.AnnotationRecord) models.BatchPayload {
	payload := models.BatchPayload{
		CourseOfferingID: key.CourseOfferingID(),
		Date:             key.DateString(),
		Records:          make([]models.BatchRecord, 0, len(annotated)),
	}
	for _, rec := range annotated {
		payload.Records = append(payload.Records, models.BatchRecord{EntityID: rec.EntityID, Value: rec.Value, Notes: rec.Notes})
	}
	return payload
}

func skippedRecords(skipped []models.SkippedEntity, records models.WorkingSet) []models.SkippedRecord {
	if len(skipped) == 0 {
		return nil
	}
	out := make([]models.SkippedRecord, 0, len(skipped))
	for _, s := range skipped {
		out = append(out, models.SkippedRecord{EntityID: s.EntityID, Reason: s.Reason, Record: records[s.EntityID]})
	}
	return out
}
