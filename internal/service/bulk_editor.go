package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
)

// EligibilityPredicate decides whether an entity may receive an annotation
// given its recorded prerequisite state. recorded is false when the
// prerequisite holds nothing for the entity.
type EligibilityPredicate func(state models.AttendanceStatus, recorded bool) bool

// IneligibleWhen returns a predicate rejecting entities recorded with any of
// the given states. Entities with no recorded state are eligible.
func IneligibleWhen(states ...models.AttendanceStatus) EligibilityPredicate {
	blocked := make(map[models.AttendanceStatus]struct{}, len(states))
	for _, st := range states {
		blocked[st] = struct{}{}
	}
	return func(state models.AttendanceStatus, recorded bool) bool {
		if !recorded {
			return true
		}
		_, ineligible := blocked[state]
		return !ineligible
	}
}

// DefaultEligibility rejects students recorded absent or late.
func DefaultEligibility() EligibilityPredicate {
	return IneligibleWhen(models.AttendanceStatusAbsent, models.AttendanceStatusLate)
}

// BulkOptions narrows and shapes a bulk edit.
type BulkOptions struct {
	// EntityIDs limits the edit to these entities. Empty means every record.
	EntityIDs []string
	// OnlyUnset skips records that already carry a value.
	OnlyUnset bool
	// ResetNotes clears notes on every changed record.
	ResetNotes bool
	// Notes, when set, replaces notes on every changed record.
	Notes *string
}

// BulkResult is the outcome of a bulk edit. Records is a new working set;
// the input is never mutated. Changed is false when no record differs from
// the input, in which case nothing was persisted.
type BulkResult struct {
	Records models.WorkingSet
	Applied int
	Skipped []string
	Changed bool
}

// Summary converts the result for API responses.
func (r BulkResult) Summary() models.BulkEditSummary {
	return models.BulkEditSummary{Applied: r.Applied, SkippedCount: len(r.Skipped), Skipped: r.Skipped}
}

type draftSaver interface {
	Save(ctx context.Context, scope models.DraftScope, records models.WorkingSet) error
}

// BulkEditor applies one value across many records and persists the result.
type BulkEditor struct {
	drafts   draftSaver
	eligible EligibilityPredicate
	logger   *zap.Logger
}

// NewBulkEditor constructs a BulkEditor. A nil predicate uses
// DefaultEligibility.
func NewBulkEditor(drafts draftSaver, eligible EligibilityPredicate, logger *zap.Logger) *BulkEditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if eligible == nil {
		eligible = DefaultEligibility()
	}
	return &BulkEditor{drafts: drafts, eligible: eligible, logger: logger}
}

// Eligible reports whether entityID may be annotated under status.
func (b *BulkEditor) Eligible(status *models.PrerequisiteStatus, entityID string) bool {
	if status == nil || !status.Exists {
		return true
	}
	state, recorded := status.StateOf(entityID)
	return b.eligible(state, recorded)
}

// ApplyToAll sets value on every record selected by opts, keeping notes
// unless opts say otherwise.
func (b *BulkEditor) ApplyToAll(ctx context.Context, scope models.DraftScope, ws models.WorkingSet, value models.AnnotationValue, opts BulkOptions) (BulkResult, error) {
	return b.apply(ctx, scope, ws, value, opts, nil)
}

// ApplyToEligible behaves like ApplyToAll but skips entities the prerequisite
// marks ineligible. Skipped records are reset to unset and reported.
func (b *BulkEditor) ApplyToEligible(ctx context.Context, scope models.DraftScope, ws models.WorkingSet, value models.AnnotationValue, status models.PrerequisiteStatus, opts BulkOptions) (BulkResult, error) {
	return b.apply(ctx, scope, ws, value, opts, &status)
}

func (b *BulkEditor) apply(ctx context.Context, scope models.DraftScope, ws models.WorkingSet, value models.AnnotationValue, opts BulkOptions, status *models.PrerequisiteStatus) (BulkResult, error) {
	if !value.Fits(scope.Workflow) {
		return BulkResult{}, appErrors.Clone(appErrors.ErrValidation, "value does not fit the "+string(scope.Workflow)+" workflow")
	}

	targets, err := selectTargets(ws, opts.EntityIDs)
	if err != nil {
		return BulkResult{}, err
	}

	next := ws.Clone()
	result := BulkResult{Records: next}
	for _, id := range targets {
		rec := next[id]
		before := rec
		if status != nil && !b.Eligible(status, id) {
			rec.Value = models.Unset()
			next[id] = rec
			result.Skipped = append(result.Skipped, id)
			result.Changed = result.Changed || rec != before
			continue
		}
		if opts.OnlyUnset && rec.IsAnnotated() {
			continue
		}
		rec.Value = value
		switch {
		case opts.Notes != nil:
			rec.Notes = *opts.Notes
		case opts.ResetNotes:
			rec.Notes = ""
		}
		next[id] = rec
		result.Applied++
		result.Changed = result.Changed || rec != before
	}

	if !result.Changed {
		return result, nil
	}
	if err := b.drafts.Save(ctx, scope, next); err != nil {
		return BulkResult{}, err
	}

	if len(result.Skipped) > 0 {
		b.logger.Debug("bulk edit skipped ineligible students",
			zap.String("roster_key", scope.Key.String()),
			zap.Int("skipped", len(result.Skipped)),
		)
	}
	return result, nil
}

func selectTargets(ws models.WorkingSet, ids []string) ([]string, error) {
	if len(ids) == 0 {
		out := make([]string, 0, len(ws))
		for id := range ws {
			out = append(out, id)
		}
		sort.Strings(out)
		return out, nil
	}

	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := ws[id]; !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student "+id+" is not on the roster")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
