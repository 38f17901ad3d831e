package repository

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
	"github.com/noah-isme/sma-roster-sync/pkg/storage"
)

// FileDraftRepository stores one JSON file per draft:
// <base>/<workflow>/<course offering>/<date>.json.
type FileDraftRepository struct {
	store *storage.LocalStorage
}

// NewFileDraftRepository constructs the repository on top of local storage.
func NewFileDraftRepository(store *storage.LocalStorage) *FileDraftRepository {
	return &FileDraftRepository{store: store}
}

// Get reads the draft file for scope.
func (r *FileDraftRepository) Get(ctx context.Context, scope models.DraftScope) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := r.store.Read(draftFilename(scope))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.ErrDraftNotFound
		}
		return nil, fmt.Errorf("read draft %s: %w", scope.Key, err)
	}
	return data, nil
}

// Put atomically replaces the draft file for scope.
func (r *FileDraftRepository) Put(ctx context.Context, scope models.DraftScope, payload []byte, _ time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.store.Save(draftFilename(scope), payload); err != nil {
		return fmt.Errorf("write draft %s: %w", scope.Key, err)
	}
	return nil
}

// Delete removes the draft file for scope.
func (r *FileDraftRepository) Delete(ctx context.Context, scope models.DraftScope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.store.Delete(draftFilename(scope)); err != nil {
		return fmt.Errorf("delete draft %s: %w", scope.Key, err)
	}
	return nil
}

func draftFilename(scope models.DraftScope) string {
	course := url.PathEscape(scope.Key.CourseOfferingID())
	if strings.HasPrefix(course, ".") {
		course = "%2E" + course[1:]
	}
	return filepath.Join(string(scope.Workflow), course, scope.Key.DateString()+".json")
}
