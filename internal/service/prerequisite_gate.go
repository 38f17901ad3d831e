package service

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
)

type prerequisiteSource interface {
	FetchPrerequisite(ctx context.Context, key models.RosterKey) (models.PrerequisiteStatus, error)
}

// PrerequisiteGate blocks grade submission until attendance exists for the
// same key. The Roster Service enforces the same rule; this check only
// fails faster.
type PrerequisiteGate struct {
	source  prerequisiteSource
	metrics *MetricsService
	logger  *zap.Logger
}

// NewPrerequisiteGate constructs a gate.
func NewPrerequisiteGate(source prerequisiteSource, metrics *MetricsService, logger *zap.Logger) *PrerequisiteGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrerequisiteGate{source: source, metrics: metrics, logger: logger}
}

// Check fetches the prerequisite status. Results are never cached.
func (g *PrerequisiteGate) Check(ctx context.Context, key models.RosterKey) (models.PrerequisiteStatus, error) {
	status, err := g.source.FetchPrerequisite(ctx, key)
	if err != nil {
		g.logger.Warn("prerequisite check failed", zap.String("roster_key", key.String()), zap.Error(err))
		return models.PrerequisiteStatus{}, err
	}
	return status, nil
}

// AuthorizeSubmission returns nil when status allows a grade submission for
// key, or PREREQUISITE_MISSING carrying a GateBlock remedy.
func (g *PrerequisiteGate) AuthorizeSubmission(key models.RosterKey, status models.PrerequisiteStatus) error {
	g.metrics.RecordGateCheck(status.Exists)
	if status.Exists {
		return nil
	}
	return appErrors.WithDetails(appErrors.ErrPrerequisiteMissing, models.GateBlock{
		Workflow:         models.WorkflowGrades,
		CourseOfferingID: key.CourseOfferingID(),
		Date:             key.DateString(),
		Prerequisite:     models.WorkflowAttendance,
		RemedyPath:       RemedyPath(key),
	})
}

// RemedyPath deep-links to the attendance screen for key.
func RemedyPath(key models.RosterKey) string {
	query := url.Values{}
	query.Set("course_offering_id", key.CourseOfferingID())
	query.Set("date", key.DateString())
	return "/attendance?" + query.Encode()
}
