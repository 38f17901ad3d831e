package dto

import "github.com/noah-isme/sma-roster-sync/internal/models"

// OpenSessionRequest starts an editing session for one workflow.
type OpenSessionRequest struct {
	Workflow string `json:"workflow" validate:"required,oneof=attendance grades"`
}

// SelectKeyRequest selects the course offering and date to annotate.
type SelectKeyRequest struct {
	CourseOfferingID string `json:"course_offering_id" validate:"required,max=128"`
	Date             string `json:"date" validate:"required,datetime=2006-01-02"`
}

// EditRecordRequest replaces one student's value and notes. A null value
// clears the annotation.
type EditRecordRequest struct {
	Value models.AnnotationValue `json:"value"`
	Notes string                 `json:"notes" validate:"max=500"`
}

// BulkEditRequest applies one value to many students.
type BulkEditRequest struct {
	Value      models.AnnotationValue `json:"value"`
	EntityIDs  []string               `json:"entity_ids" validate:"omitempty,dive,required"`
	OnlyUnset  bool                   `json:"only_unset"`
	ResetNotes bool                   `json:"reset_notes"`
	Notes      *string                `json:"notes" validate:"omitempty,max=500"`
}

// ExportQuery selects the roster sheet format.
type ExportQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}
