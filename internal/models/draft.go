package models

import (
	"fmt"
	"time"
)

// DraftSchemaVersion is written into every persisted draft. Loads reject any
// other version.
const DraftSchemaVersion = 1

// DraftScope identifies one persisted draft: a workflow plus a roster key.
type DraftScope struct {
	Workflow Workflow
	Key      RosterKey
}

// StorageKey renders the scope as a flat key, e.g.
// "roster_drafts:attendance:course-1:2024-03-01".
func (s DraftScope) StorageKey(prefix string) string {
	key := fmt.Sprintf("%s:%s:%s", s.Workflow, s.Key.CourseOfferingID(), s.Key.DateString())
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}

// DraftRecord is the persisted form of one annotation record.
type DraftRecord struct {
	Value AnnotationValue `json:"value"`
	Notes string          `json:"notes"`
}

// DraftDocument is the persisted layout of a draft entry.
type DraftDocument struct {
	Version          int                    `json:"version"`
	Workflow         Workflow               `json:"workflow"`
	CourseOfferingID string                 `json:"course_offering_id"`
	Date             string                 `json:"date"`
	SavedAt          time.Time              `json:"saved_at"`
	Records          map[string]DraftRecord `json:"records"`
}

// NewDraftDocument snapshots a working set for persistence.
func NewDraftDocument(scope DraftScope, records WorkingSet, savedAt time.Time) DraftDocument {
	doc := DraftDocument{
		Version:          DraftSchemaVersion,
		Workflow:         scope.Workflow,
		CourseOfferingID: scope.Key.CourseOfferingID(),
		Date:             scope.Key.DateString(),
		SavedAt:          savedAt.UTC(),
		Records:          make(map[string]DraftRecord, len(records)),
	}
	for id, rec := range records {
		doc.Records[id] = DraftRecord{Value: rec.Value, Notes: rec.Notes}
	}
	return doc
}

// Matches reports whether the document belongs to scope.
func (d DraftDocument) Matches(scope DraftScope) bool {
	return d.Workflow == scope.Workflow &&
		d.CourseOfferingID == scope.Key.CourseOfferingID() &&
		d.Date == scope.Key.DateString()
}

// WorkingSet rebuilds the records held by the document.
func (d DraftDocument) WorkingSet() WorkingSet {
	ws := make(WorkingSet, len(d.Records))
	for id, rec := range d.Records {
		if id == "" {
			continue
		}
		ws[id] = AnnotationRecord{EntityID: id, Value: rec.Value, Notes: rec.Notes}
	}
	return ws
}
