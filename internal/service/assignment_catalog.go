package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-submission-gateway/internal/models"
	"github.com/noah-isme/gema-submission-gateway/pkg/lms"
)

// AssignmentCatalog loads assignments with quiz overrides already applied.
type AssignmentCatalog struct {
	backend LMSBackend
	logger  zerolog.Logger
}

// NewAssignmentCatalog constructs the catalog.
func NewAssignmentCatalog(backend LMSBackend, logger zerolog.Logger) *AssignmentCatalog {
	return &AssignmentCatalog{
		backend: backend,
		logger:  logger.With().Str("component", "assignment_catalog").Logger(),
	}
}

// Load fetches one assignment and resolves its effective settings.
func (c *AssignmentCatalog) Load(ctx context.Context, assignmentID string) (models.Assignment, error) {
	if assignmentID == "" {
		return models.Assignment{}, invalid("assignment_id", "assignment is required")
	}

	assignment, err := c.backend.GetAssignment(ctx, assignmentID)
	if err != nil {
		return models.Assignment{}, backendError("load assignment", err, ErrAssignmentNotFound)
	}

	return c.resolve(ctx, assignment)
}

// List fetches every assignment visible to the learner.
func (c *AssignmentCatalog) List(ctx context.Context, learnerID string) ([]models.Assignment, error) {
	assignments, err := c.backend.ListAssignments(ctx, learnerID)
	if err != nil {
		return nil, backendError("list assignments", err, nil)
	}

	resolved := make([]models.Assignment, 0, len(assignments))
	for _, assignment := range assignments {
		effective, err := c.resolve(ctx, assignment)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, effective)
	}
	return resolved, nil
}

func (c *AssignmentCatalog) resolve(ctx context.Context, assignment models.Assignment) (models.Assignment, error) {
	if !assignment.HasQuestionSet() {
		return ApplyQuestionSet(assignment, nil), nil
	}

	set, err := c.backend.GetQuestionSet(ctx, assignment.QuestionSetID)
	switch {
	case err == nil:
		return ApplyQuestionSet(assignment, &set), nil
	case errors.Is(err, lms.ErrNotFound):
		c.logger.Warn().Str("assignment_id", assignment.ID).Str("question_set_id", assignment.QuestionSetID).Msg("question set missing, using assignment settings")
		return ApplyQuestionSet(assignment, nil), nil
	default:
		return models.Assignment{}, backendError("load question set", err, nil)
	}
}
