package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
)

// Reasons a persisted draft is ignored on load.
const (
	discardUnreadable = "unreadable"
	discardCorrupt    = "corrupt"
	discardVersion    = "version"
	discardMismatch   = "mismatch"
	discardExpired    = "expired"
)

type draftRepository interface {
	Get(ctx context.Context, scope models.DraftScope) ([]byte, error)
	Put(ctx context.Context, scope models.DraftScope, payload []byte, savedAt time.Time) error
	Delete(ctx context.Context, scope models.DraftScope) error
}

// DraftStoreConfig tunes draft persistence.
type DraftStoreConfig struct {
	// MaxAge discards drafts older than this on load. Zero keeps drafts forever.
	MaxAge time.Duration
}

// DraftStore persists in-progress working sets per workflow and roster key.
type DraftStore struct {
	repo    draftRepository
	cfg     DraftStoreConfig
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewDraftStore constructs a DraftStore over a backend repository.
func NewDraftStore(repo draftRepository, cfg DraftStoreConfig, metrics *MetricsService, logger *zap.Logger) *DraftStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftStore{repo: repo, cfg: cfg, metrics: metrics, logger: logger, now: time.Now}
}

// Load returns the persisted draft for scope or an empty set. It never fails:
// unreadable, corrupt, foreign or expired entries are logged and treated as
// empty. A cancelled ctx also yields an empty set, so callers that commit
// the result must check ctx.Err() themselves.
func (s *DraftStore) Load(ctx context.Context, scope models.DraftScope) models.WorkingSet {
	start := time.Now()
	defer func() { s.metrics.ObserveDraftOperation("load", time.Since(start)) }()

	logger := s.logger.With(zap.String("workflow", string(scope.Workflow)), zap.String("roster_key", scope.Key.String()))

	raw, err := s.repo.Get(ctx, scope)
	if err != nil {
		switch {
		case errors.Is(err, appErrors.ErrDraftNotFound):
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
			logger.Debug("draft load abandoned", zap.Error(err))
		default:
			logger.Warn("draft unreadable, starting empty", zap.Error(err))
			s.metrics.RecordDraftDiscarded(discardUnreadable)
		}
		return models.WorkingSet{}
	}

	var doc models.DraftDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		logger.Warn("draft corrupt, starting empty", zap.Error(err))
		s.metrics.RecordDraftDiscarded(discardCorrupt)
		return models.WorkingSet{}
	}
	if doc.Version != models.DraftSchemaVersion {
		logger.Warn("draft schema version unsupported, starting empty", zap.Int("version", doc.Version))
		s.metrics.RecordDraftDiscarded(discardVersion)
		return models.WorkingSet{}
	}
	if !doc.Matches(scope) {
		logger.Warn("draft belongs to another key, starting empty",
			zap.String("draft_workflow", string(doc.Workflow)),
			zap.String("draft_course_offering_id", doc.CourseOfferingID),
			zap.String("draft_date", doc.Date),
		)
		s.metrics.RecordDraftDiscarded(discardMismatch)
		return models.WorkingSet{}
	}
	if s.cfg.MaxAge > 0 && s.now().Sub(doc.SavedAt) > s.cfg.MaxAge {
		logger.Info("draft expired, discarding", zap.Time("saved_at", doc.SavedAt))
		s.metrics.RecordDraftDiscarded(discardExpired)
		if err := s.repo.Delete(ctx, scope); err != nil {
			logger.Warn("failed to delete expired draft", zap.Error(err))
		}
		return models.WorkingSet{}
	}

	records := doc.WorkingSet()
	for id, rec := range records {
		if !rec.Value.Fits(scope.Workflow) {
			logger.Warn("draft record has a value of the wrong type, dropping it", zap.String("entity_id", id))
			delete(records, id)
		}
	}
	return records
}

// Save replaces the persisted draft for scope with records. An empty set
// clears the entry instead of persisting it.
func (s *DraftStore) Save(ctx context.Context, scope models.DraftScope, records models.WorkingSet) error {
	if len(records) == 0 {
		return s.Clear(ctx, scope)
	}

	start := time.Now()
	defer func() { s.metrics.ObserveDraftOperation("save", time.Since(start)) }()

	savedAt := s.now().UTC()
	payload, err := json.Marshal(models.NewDraftDocument(scope, records, savedAt))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode draft")
	}
	if err := s.repo.Put(ctx, scope, payload, savedAt); err != nil {
		s.logger.Error("failed to persist draft",
			zap.String("workflow", string(scope.Workflow)),
			zap.String("roster_key", scope.Key.String()),
			zap.Error(err),
		)
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist draft")
	}
	return nil
}

// Clear removes the persisted draft for scope. Clearing a missing draft is
// not an error.
func (s *DraftStore) Clear(ctx context.Context, scope models.DraftScope) error {
	start := time.Now()
	defer func() { s.metrics.ObserveDraftOperation("clear", time.Since(start)) }()

	if err := s.repo.Delete(ctx, scope); err != nil && !errors.Is(err, appErrors.ErrDraftNotFound) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear draft")
	}
	return nil
}
