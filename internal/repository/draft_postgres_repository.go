package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
)

const draftSchema = `CREATE TABLE IF NOT EXISTS roster_drafts (
	workflow TEXT NOT NULL,
	course_offering_id TEXT NOT NULL,
	draft_date DATE NOT NULL,
	payload JSONB NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (workflow, course_offering_id, draft_date)
)`

type draftRow struct {
	Workflow         string    `db:"workflow"`
	CourseOfferingID string    `db:"course_offering_id"`
	DraftDate        time.Time `db:"draft_date"`
	Payload          []byte    `db:"payload"`
	SavedAt          time.Time `db:"saved_at"`
}

// PostgresDraftRepository persists drafts in the roster_drafts table.
type PostgresDraftRepository struct {
	db *sqlx.DB
}

// NewPostgresDraftRepository constructs the repository.
func NewPostgresDraftRepository(db *sqlx.DB) *PostgresDraftRepository {
	return &PostgresDraftRepository{db: db}
}

// EnsureSchema creates the drafts table when missing.
func (r *PostgresDraftRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, draftSchema); err != nil {
		return fmt.Errorf("ensure roster_drafts schema: %w", err)
	}
	return nil
}

// Get returns the stored payload for scope.
func (r *PostgresDraftRepository) Get(ctx context.Context, scope models.DraftScope) ([]byte, error) {
	const query = `SELECT payload FROM roster_drafts WHERE workflow = $1 AND course_offering_id = $2 AND draft_date = $3`
	var payload []byte
	if err := r.db.GetContext(ctx, &payload, query, string(scope.Workflow), scope.Key.CourseOfferingID(), scope.Key.Date()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrDraftNotFound
		}
		return nil, fmt.Errorf("get draft %s: %w", scope.Key, err)
	}
	return payload, nil
}

// Put upserts the payload for scope.
func (r *PostgresDraftRepository) Put(ctx context.Context, scope models.DraftScope, payload []byte, savedAt time.Time) error {
	row := draftRow{
		Workflow:         string(scope.Workflow),
		CourseOfferingID: scope.Key.CourseOfferingID(),
		DraftDate:        scope.Key.Date(),
		Payload:          payload,
		SavedAt:          savedAt.UTC(),
	}
	const query = `INSERT INTO roster_drafts (workflow, course_offering_id, draft_date, payload, saved_at)
		VALUES (:workflow, :course_offering_id, :draft_date, :payload, :saved_at)
		ON CONFLICT (workflow, course_offering_id, draft_date) DO UPDATE
		SET payload = EXCLUDED.payload,
		    saved_at = EXCLUDED.saved_at`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("upsert draft %s: %w", scope.Key, err)
	}
	return nil
}

// Delete removes the draft for scope. Missing rows are not an error.
func (r *PostgresDraftRepository) Delete(ctx context.Context, scope models.DraftScope) error {
	const query = `DELETE FROM roster_drafts WHERE workflow = $1 AND course_offering_id = $2 AND draft_date = $3`
	if _, err := r.db.ExecContext(ctx, query, string(scope.Workflow), scope.Key.CourseOfferingID(), scope.Key.Date()); err != nil {
		return fmt.Errorf("delete draft %s: %w", scope.Key, err)
	}
	return nil
}
