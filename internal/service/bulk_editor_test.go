package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	"github.com/noah-isme/sma-roster-sync/internal/repository"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
)

func newBulkFixture(t *testing.T) (*BulkEditor, *DraftStore) {
	t.Helper()
	store := NewDraftStore(repository.NewMemoryDraftRepository(""), DraftStoreConfig{}, nil, nil)
	return NewBulkEditor(store, nil, nil), store
}

func TestApplyToAllKeepsNotesAndPersists(t *testing.T) {
	editor, store := newBulkFixture(t)
	scope := attendanceScope(t)
	ws := models.WorkingSet{
		"S1": record("S1", models.Unset(), "first row"),
		"S2": record("S2", late(), ""),
	}

	result, err := editor.ApplyToAll(context.Background(), scope, ws, present(), BulkOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, record("S1", present(), "first row"), result.Records["S1"])
	assert.Equal(t, record("S2", present(), ""), result.Records["S2"])
	assert.True(t, ws["S1"].Value.IsUnset(), "input is not mutated")

	assert.Equal(t, result.Records, store.Load(context.Background(), scope))
}

func TestApplyToAllFilters(t *testing.T) {
	editor, _ := newBulkFixture(t)
	scope := attendanceScope(t)
	ws := models.WorkingSet{
		"S1": record("S1", models.Unset(), "n1"),
		"S2": record("S2", late(), "n2"),
		"S3": record("S3", models.Unset(), "n3"),
	}

	result, err := editor.ApplyToAll(context.Background(), scope, ws, present(), BulkOptions{OnlyUnset: true, ResetNotes: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, record("S2", late(), "n2"), result.Records["S2"])
	assert.Equal(t, record("S3", present(), ""), result.Records["S3"])

	note := "field trip"
	result, err = editor.ApplyToAll(context.Background(), scope, ws, models.StatusValue(models.AttendanceStatusExcused), BulkOptions{EntityIDs: []string{"S3", "S1", "S3"}, Notes: &note})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, "field trip", result.Records["S1"].Notes)
	assert.Equal(t, late(), result.Records["S2"].Value)

	_, err = editor.ApplyToAll(context.Background(), scope, ws, present(), BulkOptions{EntityIDs: []string{"S404"}})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestApplyToAllRejectsValueOfWrongWorkflow(t *testing.T) {
	editor, _ := newBulkFixture(t)
	_, err := editor.ApplyToAll(context.Background(), attendanceScope(t), models.WorkingSet{"S1": record("S1", models.Unset(), "")}, models.GradeValue(80), BulkOptions{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestApplyToEligibleSkipsIneligible(t *testing.T) {
	editor, store := newBulkFixture(t)
	scope := gradesScope(t)
	ws := models.WorkingSet{
		"S1": record("S1", models.Unset(), ""),
		"S2": record("S2", models.GradeValue(60), "stale"),
		"S3": record("S3", models.Unset(), ""),
		"S4": record("S4", models.Unset(), ""),
	}
	status := models.PrerequisiteStatus{
		Exists: true,
		PerEntity: map[string]models.AttendanceStatus{
			"S1": models.AttendanceStatusPresent,
			"S2": models.AttendanceStatusAbsent,
			"S3": models.AttendanceStatusLate,
		},
	}

	result, err := editor.ApplyToEligible(context.Background(), scope, ws, models.GradeValue(85), status, BulkOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"S2", "S3"}, result.Skipped)
	assert.Equal(t, 2, result.Summary().SkippedCount)
	assert.Equal(t, 2, result.Applied)
	assert.True(t, result.Records["S2"].Value.IsUnset())
	assert.Equal(t, "stale", result.Records["S2"].Notes)
	assert.True(t, result.Records["S3"].Value.IsUnset())
	for _, id := range []string{"S1", "S4"} {
		grade, ok := result.Records[id].Value.Grade()
		assert.True(t, ok)
		assert.Equal(t, 85.0, grade)
	}
	assert.Equal(t, result.Records, store.Load(context.Background(), scope))
}

func TestCustomEligibilityPredicate(t *testing.T) {
	store := NewDraftStore(repository.NewMemoryDraftRepository(""), DraftStoreConfig{}, nil, nil)
	editor := NewBulkEditor(store, IneligibleWhen(models.AttendanceStatusAbsent), nil)
	status := &models.PrerequisiteStatus{Exists: true, PerEntity: map[string]models.AttendanceStatus{
		"S1": models.AttendanceStatusLate,
		"S2": models.AttendanceStatusAbsent,
	}}

	assert.True(t, editor.Eligible(status, "S1"))
	assert.False(t, editor.Eligible(status, "S2"))
	assert.True(t, editor.Eligible(status, "S3"))
	assert.True(t, editor.Eligible(nil, "S2"))
	assert.True(t, editor.Eligible(&models.PrerequisiteStatus{Exists: false}, "S2"))
}

func TestApplyWithoutChangesWritesNoDraft(t *testing.T) {
	repo := repository.NewMemoryDraftRepository("")
	editor := NewBulkEditor(NewDraftStore(repo, DraftStoreConfig{}, nil, nil), nil, nil)
	scope := attendanceScope(t)
	ws := models.WorkingSet{
		"S1": record("S1", present(), ""),
		"S2": record("S2", present(), "on time"),
	}

	result, err := editor.ApplyToAll(context.Background(), scope, ws, late(), BulkOptions{OnlyUnset: true})
	require.NoError(t, err)
	assert.Zero(t, result.Applied)
	assert.False(t, result.Changed)
	assert.Equal(t, ws, result.Records)
	assert.Equal(t, 0, repo.Len())

	result, err = editor.ApplyToAll(context.Background(), scope, ws, present(), BulkOptions{EntityIDs: []string{"S1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied, "same value still counts as applied")
	assert.False(t, result.Changed)
	assert.Equal(t, 0, repo.Len())

	result, err = editor.ApplyToAll(context.Background(), scope, ws, late(), BulkOptions{EntityIDs: []string{"S1"}})
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, 1, repo.Len())
}
