package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-submission-gateway/internal/dto"
	"github.com/noah-isme/gema-submission-gateway/internal/models"
	"github.com/noah-isme/gema-submission-gateway/internal/observability"
	"github.com/noah-isme/gema-submission-gateway/pkg/lms"
)

// AttemptService enforces the attempt policy and starts quiz attempts.
type AttemptService interface {
	Eligibility(ctx context.Context, assignmentID, learnerID string) (dto.AttemptEligibilityResponse, error)
	Start(ctx context.Context, assignmentID, learnerID string) (dto.AttemptResponse, error)
}

type attemptService struct {
	catalog *AssignmentCatalog
	backend LMSBackend
	journal LifecycleRecorder
	logger  zerolog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewAttemptService constructs the attempt controller.
func NewAttemptService(catalog *AssignmentCatalog, backend LMSBackend, journal LifecycleRecorder, logger zerolog.Logger) AttemptService {
	return &attemptService{
		catalog: catalog,
		backend: backend,
		journal: journal,
		logger:  logger.With().Str("component", "attempt_service").Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/gema-submission-gateway/internal/service/attempt"),
		now:     time.Now,
	}
}

// CanStart reports whether another attempt may be started. The due date is not checked here:
// starting late is allowed and only surfaced as a warning.
func CanStart(assignment models.Assignment, prior []models.Attempt) bool {
	if assignment.UnlimitedAttempts() {
		return true
	}
	return len(prior) < *assignment.MaxAttempts
}

func (s *attemptService) Eligibility(ctx context.Context, assignmentID, learnerID string) (dto.AttemptEligibilityResponse, error) {
	assignment, err := s.catalog.Load(ctx, assignmentID)
	if err != nil {
		return dto.AttemptEligibilityResponse{}, err
	}

	prior, err := s.backend.ListAttempts(ctx, assignmentID, learnerID)
	if err != nil {
		return dto.AttemptEligibilityResponse{}, backendError("list attempts", err, ErrAssignmentNotFound)
	}

	summary := attemptSummary(assignment, prior)
	response := dto.AttemptEligibilityResponse{
		AssignmentID: assignment.ID,
		CanStart:     summary.CanStart,
		Used:         summary.Used,
		Max:          summary.Max,
		Remaining:    summary.Remaining,
		Overdue:      assignment.IsPastDue(s.now()),
	}
	if response.Overdue {
		response.Warning = "this assignment is past its due date"
	}
	return response, nil
}

func (s *attemptService) Start(ctx context.Context, assignmentID, learnerID string) (dto.AttemptResponse, error) {
	ctx, span := s.tracer.Start(ctx, "attempts.start", trace.WithAttributes(
		attribute.String("attempt.assignment_id", assignmentID),
	))
	defer span.End()

	attempt, assignment, err := s.start(ctx, assignmentID, learnerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.AttemptResponse{}, err
	}

	span.SetAttributes(attribute.Int("attempt.ordinal", attempt.Ordinal))
	return dto.NewAttemptResponse(attempt, assignment.TimeLimitMinutes), nil
}

func (s *attemptService) start(ctx context.Context, assignmentID, learnerID string) (models.Attempt, models.Assignment, error) {
	assignment, err := s.catalog.Load(ctx, assignmentID)
	if err != nil {
		return models.Attempt{}, models.Assignment{}, err
	}
	if !assignment.HasQuestionSet() {
		return models.Attempt{}, assignment, invalid("assignment_id", "assignment has no quiz to attempt")
	}

	// Always count from a fresh read; a local counter may be behind the server.
	prior, err := s.backend.ListAttempts(ctx, assignmentID, learnerID)
	if err != nil {
		return models.Attempt{}, assignment, backendError("list attempts", err, ErrAssignmentNotFound)
	}
	if !CanStart(assignment, prior) {
		observability.AttemptStarts().WithLabelValues("limit_reached").Inc()
		return models.Attempt{}, assignment, fmt.Errorf("%w: %d of %d used", ErrAttemptLimitReached, len(prior), *assignment.MaxAttempts)
	}

	ordinal := len(prior) + 1
	key := models.AttemptIdempotencyKey(assignmentID, learnerID, ordinal)
	entry := LifecycleEntry{
		LearnerID:    learnerID,
		AssignmentID: assignmentID,
		Metadata:     map[string]interface{}{"ordinal": ordinal},
	}

	attempt, err := s.backend.StartAttempt(ctx, lms.StartAttemptRequest{
		AssignmentID:   assignmentID,
		LearnerID:      learnerID,
		Ordinal:        ordinal,
		IdempotencyKey: key,
	})
	if err == nil {
		s.started(ctx, entry, attempt, "started")
		return attempt, assignment, nil
	}

	switch {
	case errors.Is(err, lms.ErrConflict):
		observability.AttemptStarts().WithLabelValues("conflict").Inc()
		entry.Action = models.ActionAttemptConflict
		journal(ctx, s.journal, s.logger, entry)
		return models.Attempt{}, assignment, fmt.Errorf("%w: %w", ErrAttemptConflict, err)

	case lms.NeverDelivered(err):
		observability.AttemptStarts().WithLabelValues("not_delivered").Inc()
		return models.Attempt{}, assignment, fmt.Errorf("start attempt: %w: %w", ErrNetwork, err)

	case lms.IsAmbiguous(err):
		recovered, found, recheckErr := s.recheck(ctx, assignmentID, learnerID, key, ordinal)
		if recheckErr != nil {
			observability.AttemptStarts().WithLabelValues("unknown").Inc()
			s.logger.Warn().Err(err).AnErr("recheck_error", recheckErr).Str("assignment_id", assignmentID).Msg("attempt outcome unknown")
			entry.Action = models.ActionAttemptUnknown
			journal(ctx, s.journal, s.logger, entry)
			return models.Attempt{}, assignment, fmt.Errorf("%w: %w", ErrAttemptOutcomeUnknown, err)
		}
		if !found {
			observability.AttemptStarts().WithLabelValues("not_recorded").Inc()
			return models.Attempt{}, assignment, fmt.Errorf("start attempt: %w: %w", ErrNetwork, err)
		}
		s.started(ctx, entry, recovered, "recovered")
		return recovered, assignment, nil

	default:
		observability.AttemptStarts().WithLabelValues("failed").Inc()
		return models.Attempt{}, assignment, backendError("start attempt", err, ErrAssignmentNotFound)
	}
}

// recheck looks for the attempt a lost response may have created.
func (s *attemptService) recheck(ctx context.Context, assignmentID, learnerID, key string, ordinal int) (models.Attempt, bool, error) {
	attempts, err := s.backend.ListAttempts(ctx, assignmentID, learnerID)
	if err != nil {
		return models.Attempt{}, false, err
	}

	for _, attempt := range attempts {
		if attempt.IdempotencyKey == key {
			return attempt, true, nil
		}
	}
	for _, attempt := range attempts {
		if attempt.IdempotencyKey == "" && attempt.Ordinal == ordinal {
			return attempt, true, nil
		}
	}
	return models.Attempt{}, false, nil
}

func (s *attemptService) started(ctx context.Context, entry LifecycleEntry, attempt models.Attempt, outcome string) {
	observability.AttemptStarts().WithLabelValues(outcome).Inc()
	entry.Action = models.ActionAttemptStarted
	entry.AttemptID = attempt.ID
	entry.Metadata["outcome"] = outcome
	journal(ctx, s.journal, s.logger, entry)
	s.logger.Info().Str("attempt_id", attempt.ID).Str("assignment_id", entry.AssignmentID).Int("ordinal", attempt.Ordinal).Str("outcome", outcome).Msg("attempt started")
}

func attemptSummary(assignment models.Assignment, prior []models.Attempt) dto.AttemptSummary {
	summary := dto.AttemptSummary{
		Used:     len(prior),
		Max:      assignment.MaxAttempts,
		CanStart: CanStart(assignment, prior),
	}
	if !assignment.UnlimitedAttempts() {
		remaining := *assignment.MaxAttempts - len(prior)
		if remaining < 0 {
			remaining = 0
		}
		summary.Remaining = &remaining
	}
	return summary
}
