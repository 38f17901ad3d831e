package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

type draftLoader interface {
	Load(ctx context.Context, scope models.DraftScope) models.WorkingSet
}

// RosterReconciler builds the working set for a key from the fetched roster
// and any persisted draft.
type RosterReconciler struct {
	drafts draftLoader
	logger *zap.Logger
}

// NewRosterReconciler constructs a reconciler.
func NewRosterReconciler(drafts draftLoader, logger *zap.Logger) *RosterReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterReconciler{drafts: drafts, logger: logger}
}

// Reconcile seeds records from committed server annotations, then lets the
// draft win for every entity it mentions. It reports whether a draft was
// applied.
func (r *RosterReconciler) Reconcile(ctx context.Context, scope models.DraftScope, entities []models.RosterEntity) (models.WorkingSet, bool) {
	seed := SeedWorkingSet(scope.Workflow, entities)
	draft := r.drafts.Load(ctx, scope)
	if len(draft) == 0 {
		return seed, false
	}

	merged, dropped := MergeDraft(seed, draft)
	if len(dropped) > 0 {
		r.logger.Info("dropped draft records for students no longer on the roster",
			zap.String("workflow", string(scope.Workflow)),
			zap.String("roster_key", scope.Key.String()),
			zap.Strings("entity_ids", dropped),
		)
	}
	return merged, len(dropped) < len(draft)
}

// SeedWorkingSet builds one record per roster entity, pre-filled with the
// committed annotation when it belongs to workflow.
func SeedWorkingSet(workflow models.Workflow, entities []models.RosterEntity) models.WorkingSet {
	ws := make(models.WorkingSet, len(entities))
	for _, entity := range entities {
		if entity.EntityID == "" {
			continue
		}
		if _, exists := ws[entity.EntityID]; exists {
			continue
		}
		rec := models.AnnotationRecord{EntityID: entity.EntityID}
		if entity.Annotation != nil && entity.Annotation.Value.Fits(workflow) {
			rec.Value = entity.Annotation.Value
			rec.Notes = entity.Annotation.Notes
		}
		ws[entity.EntityID] = rec
	}
	return ws
}

// MergeDraft applies last-writer-wins at record granularity: every draft
// record replaces the seeded record for the same entity, value and notes
// together. Draft records for entities missing from seed are returned as
// dropped, sorted.
func MergeDraft(seed, draft models.WorkingSet) (models.WorkingSet, []string) {
	merged := seed.Clone()
	var dropped []string
	for id, rec := range draft {
		if _, ok := merged[id]; !ok {
			dropped = append(dropped, id)
			continue
		}
		rec.EntityID = id
		merged[id] = rec
	}
	sort.Strings(dropped)
	return merged, dropped
}
