package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
	"github.com/noah-isme/sma-roster-sync/pkg/storage"
)

type draftRepository interface {
	Get(ctx context.Context, scope models.DraftScope) ([]byte, error)
	Put(ctx context.Context, scope models.DraftScope, payload []byte, savedAt time.Time) error
	Delete(ctx context.Context, scope models.DraftScope) error
}

func mustScope(t *testing.T, workflow models.Workflow, course, date string) models.DraftScope {
	t.Helper()
	key, err := models.ParseRosterKey(course, date)
	require.NoError(t, err)
	return models.DraftScope{Workflow: workflow, Key: key}
}

func exerciseDraftRepository(t *testing.T, repo draftRepository) {
	ctx := context.Background()
	attendance := mustScope(t, models.WorkflowAttendance, "course-1", "2024-03-01")
	grades := mustScope(t, models.WorkflowGrades, "course-1", "2024-03-01")
	otherDay := mustScope(t, models.WorkflowAttendance, "course-1", "2024-03-02")

	_, err := repo.Get(ctx, attendance)
	require.True(t, errors.Is(err, appErrors.ErrDraftNotFound))

	require.NoError(t, repo.Put(ctx, attendance, []byte(`{"v":1}`), time.Now()))
	require.NoError(t, repo.Put(ctx, attendance, []byte(`{"v":2}`), time.Now()))
	require.NoError(t, repo.Put(ctx, grades, []byte(`{"g":1}`), time.Now()))

	got, err := repo.Get(ctx, attendance)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(got))

	got, err = repo.Get(ctx, grades)
	require.NoError(t, err)
	assert.Equal(t, `{"g":1}`, string(got))

	_, err = repo.Get(ctx, otherDay)
	assert.True(t, errors.Is(err, appErrors.ErrDraftNotFound))

	require.NoError(t, repo.Delete(ctx, attendance))
	require.NoError(t, repo.Delete(ctx, attendance))
	_, err = repo.Get(ctx, attendance)
	assert.True(t, errors.Is(err, appErrors.ErrDraftNotFound))

	got, err = repo.Get(ctx, grades)
	require.NoError(t, err)
	assert.Equal(t, `{"g":1}`, string(got))
}

func TestMemoryDraftRepository(t *testing.T) {
	repo := NewMemoryDraftRepository("drafts")
	exerciseDraftRepository(t, repo)
	assert.Equal(t, 1, repo.Len())
}

func TestMemoryDraftRepositoryCopiesPayload(t *testing.T) {
	repo := NewMemoryDraftRepository("")
	scope := mustScope(t, models.WorkflowAttendance, "course-1", "2024-03-01")
	payload := []byte("abc")
	require.NoError(t, repo.Put(context.Background(), scope, payload, time.Now()))
	payload[0] = 'x'

	got, err := repo.Get(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestFileDraftRepository(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	exerciseDraftRepository(t, NewFileDraftRepository(store))

	_, err = os.Stat(filepath.Join(dir, "grades", "course-1", "2024-03-01.json"))
	assert.NoError(t, err)
}

func TestFileDraftRepositoryEscapesCourseIDs(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	repo := NewFileDraftRepository(store)

	scope := mustScope(t, models.WorkflowAttendance, "../evil/..", "2024-03-01")
	require.NoError(t, repo.Put(context.Background(), scope, []byte("x"), time.Now()))

	got, err := repo.Get(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))

	entries, err := os.ReadDir(filepath.Join(dir, "attendance"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "%2E.%2Fevil%2F..", entries[0].Name())
}

func TestRedisDraftRepositoryWithoutClient(t *testing.T) {
	repo := NewRedisDraftRepository(nil, "drafts")
	scope := mustScope(t, models.WorkflowAttendance, "course-1", "2024-03-01")

	_, err := repo.Get(context.Background(), scope)
	assert.True(t, errors.Is(err, appErrors.ErrDraftNotFound))
	assert.Error(t, repo.Put(context.Background(), scope, []byte("x"), time.Now()))
	assert.NoError(t, repo.Delete(context.Background(), scope))
	assert.NoError(t, repo.Close())
}
