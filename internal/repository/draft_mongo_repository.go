package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
)

// DraftCollection is the mongo collection holding drafts.
const DraftCollection = "roster_drafts"

type draftDocument struct {
	ID               string    `bson:"_id"`
	Workflow         string    `bson:"workflow"`
	CourseOfferingID string    `bson:"course_offering_id"`
	Date             string    `bson:"date"`
	Payload          []byte    `bson:"payload"`
	SavedAt          time.Time `bson:"saved_at"`
}

// MongoDraftRepository stores one document per draft keyed by the scope's
// storage key.
type MongoDraftRepository struct {
	collection *mongo.Collection
	prefix     string
}

// NewMongoDraftRepository constructs the repository on db.
func NewMongoDraftRepository(db *mongo.Database, prefix string) *MongoDraftRepository {
	return &MongoDraftRepository{collection: db.Collection(DraftCollection), prefix: prefix}
}

// Get returns the stored payload for scope.
func (r *MongoDraftRepository) Get(ctx context.Context, scope models.DraftScope) ([]byte, error) {
	var doc draftDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": scope.StorageKey(r.prefix)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, appErrors.ErrDraftNotFound
		}
		return nil, fmt.Errorf("find draft %s: %w", scope.Key, err)
	}
	return doc.Payload, nil
}

// Put replaces (or inserts) the draft document for scope.
func (r *MongoDraftRepository) Put(ctx context.Context, scope models.DraftScope, payload []byte, savedAt time.Time) error {
	doc := draftDocument{
		ID:               scope.StorageKey(r.prefix),
		Workflow:         string(scope.Workflow),
		CourseOfferingID: scope.Key.CourseOfferingID(),
		Date:             scope.Key.DateString(),
		Payload:          payload,
		SavedAt:          savedAt.UTC(),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		return fmt.Errorf("replace draft %s: %w", scope.Key, err)
	}
	return nil
}

// Delete removes the draft document for scope.
func (r *MongoDraftRepository) Delete(ctx context.Context, scope models.DraftScope) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": scope.StorageKey(r.prefix)}); err != nil {
		return fmt.Errorf("delete draft %s: %w", scope.Key, err)
	}
	return nil
}
