package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-roster-sync/internal/dto"
	"github.com/noah-isme/sma-roster-sync/internal/models"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
)

type rosterFetcher interface {
	FetchRoster(ctx context.Context, key models.RosterKey, workflow models.Workflow) ([]models.RosterEntity, error)
}

// SessionConfig tunes editing sessions.
type SessionConfig struct {
	IdleTTL  time.Duration
	GradeMin float64
	GradeMax float64
}

// SessionDeps groups the engine components a SessionService drives.
type SessionDeps struct {
	Roster      rosterFetcher
	Drafts      *DraftStore
	Reconciler  *RosterReconciler
	Bulk        *BulkEditor
	Gate        *PrerequisiteGate
	Coordinator *SubmissionCoordinator
	Events      *EventHub
}

type editSession struct {
	mu sync.Mutex

	id        string
	owner     string
	workflow  models.Workflow
	createdAt time.Time
	active    time.Time

	generation   uint64
	key          models.RosterKey
	entities     []models.RosterEntity
	records      models.WorkingSet
	prerequisite *models.PrerequisiteStatus
	hasDraft     bool
	submitting   bool
}

func (e *editSession) scope() models.DraftScope {
	return models.DraftScope{Workflow: e.workflow, Key: e.key}
}

// SessionService is the surface the annotation screens talk to: select a
// key, read the working set, edit, bulk edit, submit and clear.
type SessionService struct {
	deps      SessionDeps
	cfg       SessionConfig
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*editSession
}

// NewSessionService constructs a SessionService.
func NewSessionService(deps SessionDeps, cfg SessionConfig, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 2 * time.Hour
	}
	if cfg.GradeMax <= cfg.GradeMin {
		cfg.GradeMin, cfg.GradeMax = 0, 100
	}
	return &SessionService{
		deps:      deps,
		cfg:       cfg,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*editSession),
	}
}

// Open starts a session for the requested workflow.
func (s *SessionService) Open(ctx context.Context, owner string, req dto.OpenSessionRequest) (*models.SessionSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	s.Sweep()

	now := s.now().UTC()
	sess := &editSession{
		id:        uuid.NewString(),
		owner:     owner,
		workflow:  models.Workflow(req.Workflow),
		createdAt: now,
		active:    now,
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	count := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveSessions(count)

	s.logger.Info("editing session opened",
		zap.String("session_id", sess.id),
		zap.String("workflow", req.Workflow),
		zap.String("owner", owner),
	)
	summary := summarize(sess)
	s.deps.Events.Publish(sess.id, models.EventSessionOpened, summary)
	return &summary, nil
}

// Authorize checks that userID may use the session. Admins may use any.
func (s *SessionService) Authorize(id, userID string, admin bool) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	if admin || sess.owner == "" || sess.owner == userID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "session belongs to another user")
}

// SelectKey fetches and reconciles the roster for a new key. If another
// selection starts before this one finishes, this result is discarded and
// SELECTION_SUPERSEDED returned.
func (s *SessionService) SelectKey(ctx context.Context, id string, req dto.SelectKeyRequest) (*models.WorkingSetView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid selection")
	}
	key, err := models.ParseRosterKey(req.CourseOfferingID, req.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	sess, err := s.touch(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	sess.generation++
	generation := sess.generation
	workflow := sess.workflow
	sess.mu.Unlock()

	entities, err := s.deps.Roster.FetchRoster(ctx, key, workflow)
	if err != nil {
		if s.superseded(sess, generation) {
			return nil, appErrors.ErrSelectionSuperseded
		}
		return nil, err
	}

	var prerequisite *models.PrerequisiteStatus
	if workflow.Gated() {
		status, err := s.deps.Gate.Check(ctx, key)
		if err == nil {
			prerequisite = &status
		}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.generation != generation {
		s.logger.Debug("discarding superseded selection", zap.String("session_id", id), zap.String("roster_key", key.String()))
		return nil, appErrors.ErrSelectionSuperseded
	}

	scope := models.DraftScope{Workflow: workflow, Key: key}
	records, hasDraft := s.deps.Reconciler.Reconcile(ctx, scope, entities)
	if ctxErr := ctx.Err(); ctxErr != nil {
		// The draft read may have been cut short; committing would hide it.
		s.logger.Debug("discarding abandoned selection", zap.String("session_id", id), zap.String("roster_key", key.String()), zap.Error(ctxErr))
		return nil, abandonedSelection(ctxErr)
	}

	sess.key = key
	sess.entities = entities
	sess.records = records
	sess.prerequisite = prerequisite
	sess.hasDraft = hasDraft

	view := s.view(sess)
	s.deps.Events.Publish(id, models.EventSelectionChanged, view)
	return &view, nil
}

// WorkingSet returns the reconciled records for the selected key in roster
// order.
func (s *SessionService) WorkingSet(id string) (*models.WorkingSetView, error) {
	sess, err := s.touch(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.key.IsZero() {
		return nil, appErrors.ErrNoSelection
	}
	view := s.view(sess)
	return &view, nil
}

// EditRecord replaces one student's value and notes and persists the draft
// before returning.
func (s *SessionService) EditRecord(ctx context.Context, id, entityID string, req dto.EditRecordRequest) (*models.RecordView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid record payload")
	}
	sess, err := s.touch(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := s.editable(sess); err != nil {
		return nil, err
	}
	current, ok := sess.records[entityID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student is not on the roster")
	}
	if err := s.validateValue(sess.workflow, req.Value); err != nil {
		return nil, err
	}
	if sess.workflow.Gated() && !req.Value.IsUnset() && !s.deps.Bulk.Eligible(sess.prerequisite, entityID) {
		return nil, appErrors.WithDetails(appErrors.ErrIneligible, map[string]string{"entity_id": entityID})
	}

	edited := current
	edited.Value = req.Value
	edited.Notes = req.Notes
	if edited == current {
		row := s.recordView(sess, s.entityByID(sess, entityID))
		return &row, nil
	}
	next := sess.records.Clone()
	next[entityID] = edited
	if err := s.deps.Drafts.Save(ctx, sess.scope(), next); err != nil {
		return nil, err
	}
	sess.records = next
	sess.hasDraft = true

	row := s.recordView(sess, s.entityByID(sess, entityID))
	s.deps.Events.Publish(id, models.EventRecordUpdated, row)
	return &row, nil
}

// BulkEdit applies one value across the working set. For grades with a known
// prerequisite, ineligible students are skipped and reported.
func (s *SessionService) BulkEdit(ctx context.Context, id string, req dto.BulkEditRequest) (*models.BulkEditSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk edit payload")
	}
	sess, err := s.touch(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := s.editable(sess); err != nil {
		return nil, err
	}
	if err := s.validateValue(sess.workflow, req.Value); err != nil {
		return nil, err
	}

	opts := BulkOptions{EntityIDs: req.EntityIDs, OnlyUnset: req.OnlyUnset, ResetNotes: req.ResetNotes, Notes: req.Notes}
	var result BulkResult
	if sess.workflow.Gated() && sess.prerequisite != nil && sess.prerequisite.Exists && !req.Value.IsUnset() {
		result, err = s.deps.Bulk.ApplyToEligible(ctx, sess.scope(), sess.records, req.Value, *sess.prerequisite, opts)
	} else {
		result, err = s.deps.Bulk.ApplyToAll(ctx, sess.scope(), sess.records, req.Value, opts)
	}
	if err != nil {
		return nil, err
	}
	sess.records = result.Records
	if result.Changed {
		sess.hasDraft = true
	}

	summary := result.Summary()
	s.deps.Events.Publish(id, models.EventBulkApplied, summary)
	return &summary, nil
}

// Submit sends the working set through the submission coordinator. On
// success the roster is re-fetched; a failed refresh is logged and reported
// through Refreshed=false without undoing the submission.
func (s *SessionService) Submit(ctx context.Context, id string) (*models.SubmissionOutcome, error) {
	sess, err := s.touch(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.key.IsZero() {
		sess.mu.Unlock()
		return nil, appErrors.ErrNoSelection
	}
	if sess.submitting {
		sess.mu.Unlock()
		return nil, appErrors.ErrSubmissionInFlight
	}
	sess.submitting = true
	generation := sess.generation
	scope := sess.scope()
	records := sess.records.Clone()
	sess.mu.Unlock()

	defer func() {
		sess.mu.Lock()
		sess.submitting = false
		sess.mu.Unlock()
	}()

	notify := func(state models.SubmissionState) {
		s.deps.Events.Publish(id, models.EventSubmissionState, map[string]string{"state": string(state)})
	}
	outcome, err := s.deps.Coordinator.Submit(ctx, scope, records, notify)
	if err != nil {
		return nil, err
	}

	if outcome.DraftCleared {
		sess.mu.Lock()
		if sess.generation == generation {
			sess.hasDraft = false
		}
		sess.mu.Unlock()
	}

	entities, err := s.deps.Roster.FetchRoster(ctx, scope.Key, scope.Workflow)
	if err != nil {
		s.logger.Warn("roster refresh after submission failed",
			zap.String("session_id", id),
			zap.String("roster_key", scope.Key.String()),
			zap.Error(err),
		)
	} else {
		sess.mu.Lock()
		if sess.generation == generation {
			sess.records, sess.hasDraft = s.deps.Reconciler.Reconcile(ctx, scope, entities)
			sess.entities = entities
			outcome.Refreshed = true
		}
		sess.mu.Unlock()
	}

	s.deps.Events.Publish(id, models.EventSubmissionOutcome, outcome)
	return outcome, nil
}

// ClearDraft discards the persisted draft and resets the working set to the
// server's committed values.
func (s *SessionService) ClearDraft(ctx context.Context, id string) (*models.WorkingSetView, error) {
	sess, err := s.touch(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := s.editable(sess); err != nil {
		return nil, err
	}
	if err := s.deps.Drafts.Clear(ctx, sess.scope()); err != nil {
		return nil, err
	}
	sess.records = SeedWorkingSet(sess.workflow, sess.entities)
	sess.hasDraft = false

	view := s.view(sess)
	s.deps.Events.Publish(id, models.EventDraftCleared, view)
	return &view, nil
}

// Close drops the session. Its draft stays persisted.
func (s *SessionService) Close(id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	count := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return appErrors.ErrSessionNotFound
	}
	s.metrics.SetActiveSessions(count)
	s.deps.Events.Publish(id, models.EventSessionClosed, nil)
	s.deps.Events.CloseSession(id)
	return nil
}

// Sweep closes sessions idle for longer than the configured TTL and returns
// how many were removed.
func (s *SessionService) Sweep() int {
	cutoff := s.now().Add(-s.cfg.IdleTTL)
	var expired []string

	s.mu.Lock()
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.active.Before(cutoff) && !sess.submitting
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			expired = append(expired, id)
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	if pruned := s.deps.Coordinator.Prune(cutoff); pruned > 0 {
		s.logger.Debug("forgot finished submissions", zap.Int("count", pruned))
	}
	if len(expired) == 0 {
		return 0
	}
	s.metrics.SetActiveSessions(count)
	for _, id := range expired {
		s.deps.Events.CloseSession(id)
	}
	s.logger.Info("expired idle sessions", zap.Int("count", len(expired)))
	return len(expired)
}

// RunJanitor sweeps idle sessions until ctx is done.
func (s *SessionService) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *SessionService) lookup(id string) (*editSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, appErrors.ErrSessionNotFound
	}
	return sess, nil
}

func (s *SessionService) touch(id string) (*editSession, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	sess.active = s.now().UTC()
	sess.mu.Unlock()
	return sess, nil
}

func (s *SessionService) superseded(sess *editSession, generation uint64) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.generation != generation
}

func (s *SessionService) editable(sess *editSession) error {
	if sess.key.IsZero() {
		return appErrors.ErrNoSelection
	}
	if sess.submitting {
		return appErrors.ErrSubmissionInFlight
	}
	return nil
}

func (s *SessionService) validateValue(workflow models.Workflow, value models.AnnotationValue) error {
	if !value.Fits(workflow) {
		return appErrors.Clone(appErrors.ErrValidation, "value does not fit the "+string(workflow)+" workflow")
	}
	if grade, ok := value.Grade(); ok {
		if math.IsNaN(grade) || grade < s.cfg.GradeMin || grade > s.cfg.GradeMax {
			return appErrors.WithDetails(
				appErrors.Clone(appErrors.ErrValidation, "grade out of range"),
				map[string]float64{"min": s.cfg.GradeMin, "max": s.cfg.GradeMax},
			)
		}
	}
	return nil
}

func (s *SessionService) entityByID(sess *editSession, entityID string) models.RosterEntity {
	for _, entity := range sess.entities {
		if entity.EntityID == entityID {
			return entity
		}
	}
	return models.RosterEntity{EntityID: entityID}
}

func (s *SessionService) recordView(sess *editSession, entity models.RosterEntity) models.RecordView {
	rec := sess.records[entity.EntityID]
	row := models.RecordView{
		EntityID:       entity.EntityID,
		Name:           entity.Name,
		ExternalNumber: entity.ExternalNumber,
		Value:          rec.Value,
		Notes:          rec.Notes,
		Committed:      entity.Annotation,
		Eligible:       true,
	}
	if sess.workflow.Gated() {
		row.Eligible = s.deps.Bulk.Eligible(sess.prerequisite, entity.EntityID)
		if state, ok := sess.prerequisite.StateOf(entity.EntityID); ok {
			row.Prerequisite = state
		}
	}
	return row
}

func (s *SessionService) view(sess *editSession) models.WorkingSetView {
	view := models.WorkingSetView{
		SessionID:        sess.id,
		Workflow:         sess.workflow,
		CourseOfferingID: sess.key.CourseOfferingID(),
		Date:             sess.key.DateString(),
		Records:          make([]models.RecordView, 0, len(sess.records)),
		Total:            len(sess.records),
		Annotated:        sess.records.AnnotatedCount(),
		HasDraft:         sess.hasDraft,
		Prerequisite:     sess.prerequisite,
		SubmissionState:  s.deps.Coordinator.State(sess.scope()),
	}

	seen := make(map[string]struct{}, len(sess.entities))
	for _, entity := range sess.entities {
		if _, dup := seen[entity.EntityID]; dup {
			continue
		}
		if _, ok := sess.records[entity.EntityID]; !ok {
			continue
		}
		seen[entity.EntityID] = struct{}{}
		view.Records = append(view.Records, s.recordView(sess, entity))
	}

	// Records without a roster entity cannot occur after reconcile, but keep
	// the view complete if they do.
	var orphans []string
	for id := range sess.records {
		if _, ok := seen[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	for _, id := range orphans {
		view.Records = append(view.Records, s.recordView(sess, models.RosterEntity{EntityID: id}))
	}
	return view
}

func summarize(sess *editSession) models.SessionSummary {
	return models.SessionSummary{
		ID:               sess.id,
		Workflow:         sess.workflow,
		Owner:            sess.owner,
		CourseOfferingID: sess.key.CourseOfferingID(),
		Date:             sess.key.DateString(),
		CreatedAt:        sess.createdAt,
		LastActiveAt:     sess.active,
	}
}

func abandonedSelection(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return appErrors.Wrap(err, appErrors.ErrUpstreamTimeout.Code, appErrors.ErrUpstreamTimeout.Status, "selection timed out before the draft was read")
	}
	return appErrors.Wrap(err, appErrors.ErrRequestAborted.Code, appErrors.ErrRequestAborted.Status, "selection cancelled before the draft was read")
}
