package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/gema-submission-gateway/internal/dto"
	"github.com/noah-isme/gema-submission-gateway/internal/models"
	"github.com/noah-isme/gema-submission-gateway/internal/observability"
	"github.com/noah-isme/gema-submission-gateway/internal/repository"
	"github.com/noah-isme/gema-submission-gateway/pkg/lms"
)

// Submit triggers.
const (
	SubmitReasonManual  = "manual"
	SubmitReasonTimeout = "timeout"
)

// QuizService saves answers, hands in attempts and drives their countdowns.
type QuizService interface {
	SaveDraft(ctx context.Context, attemptID, learnerID string, req dto.QuizDraftRequest) (dto.QuizDraftResponse, error)
	Submit(ctx context.Context, attemptID, learnerID string, answers map[string]interface{}, reason string) (dto.SubmissionResultResponse, error)
	OpenTimer(ctx context.Context, attemptID, learnerID string, emit func(dto.TimerFrame)) (*QuizTimer, error)
}

// QuizConfig tunes the quiz service.
type QuizConfig struct {
	TickInterval time.Duration
	DraftTTL     time.Duration
	// SubmitTTL keeps the accepted submission memoised.
	SubmitTTL time.Duration
	// ClaimTTL bounds how long a crashed submitter can hold off the others. It must exceed
	// one backend call.
	ClaimTTL time.Duration
}

type quizService struct {
	catalog    *AssignmentCatalog
	backend    LMSBackend
	store      repository.SessionStore
	reconciler *Reconciler
	journal    LifecycleRecorder
	cfg        QuizConfig
	inflight   singleflight.Group
	submitted  sync.Map
	nodeID     string
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewQuizService constructs the quiz service.
func NewQuizService(catalog *AssignmentCatalog, backend LMSBackend, store repository.SessionStore, reconciler *Reconciler, journal LifecycleRecorder, cfg QuizConfig, logger zerolog.Logger) QuizService {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.DraftTTL <= 0 {
		cfg.DraftTTL = 6 * time.Hour
	}
	if cfg.SubmitTTL <= 0 {
		cfg.SubmitTTL = 24 * time.Hour
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 30 * time.Second
	}
	return &quizService{
		catalog:    catalog,
		backend:    backend,
		store:      store,
		reconciler: reconciler,
		journal:    journal,
		cfg:        cfg,
		nodeID:     uuid.NewString(),
		logger:     logger.With().Str("component", "quiz_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/gema-submission-gateway/internal/service/quiz"),
		now:        time.Now,
	}
}

func (s *quizService) SaveDraft(ctx context.Context, attemptID, learnerID string, req dto.QuizDraftRequest) (dto.QuizDraftResponse, error) {
	if req.Answers == nil {
		return dto.QuizDraftResponse{}, invalid("answers", "answers are required")
	}
	attempt, err := s.attempt(ctx, attemptID, learnerID)
	if err != nil {
		return dto.QuizDraftResponse{}, err
	}
	if _, done := s.memo(ctx, attemptID); done {
		return dto.QuizDraftResponse{}, fmt.Errorf("%w: attempt already submitted", ErrSubmissionClosed)
	}

	draft := models.QuizDraft{
		AttemptID:    attempt.ID,
		AssignmentID: attempt.AssignmentID,
		LearnerID:    learnerID,
		Answers:      req.Answers,
		SavedAt:      s.now().UTC(),
	}
	if err := s.store.SaveDraft(ctx, draft, s.cfg.DraftTTL); err != nil {
		return dto.QuizDraftResponse{}, fmt.Errorf("save draft: %w", err)
	}

	return dto.QuizDraftResponse{AttemptID: attempt.ID, AnswerCount: len(req.Answers), SavedAt: draft.SavedAt}, nil
}

// Submit hands in an attempt. Timer and manual submits for the same attempt converge on one
// backend submission: concurrent calls share a flight, later calls reuse the memoised result,
// and other replicas are held off by a Redis claim.
func (s *quizService) Submit(ctx context.Context, attemptID, learnerID string, answers map[string]interface{}, reason string) (dto.SubmissionResultResponse, error) {
	if reason != SubmitReasonTimeout {
		reason = SubmitReasonManual
	}
	ctx, span := s.tracer.Start(ctx, "quiz.submit", trace.WithAttributes(
		attribute.String("quiz.attempt_id", attemptID),
		attribute.String("quiz.reason", reason),
	))
	defer span.End()

	attempt, err := s.attempt(ctx, attemptID, learnerID)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResultResponse{}, err
	}
	assignment, err := s.catalog.Load(ctx, attempt.AssignmentID)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResultResponse{}, err
	}

	result, err, shared := s.inflight.Do(attemptID, func() (interface{}, error) {
		return s.submitOnce(ctx, attempt, learnerID, answers, reason)
	})
	if err != nil {
		observability.QuizSubmits().WithLabelValues(reason, "failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.SubmissionResultResponse{}, err
	}
	if shared {
		observability.QuizSubmits().WithLabelValues(reason, "coalesced").Inc()
	}

	submission := result.(models.Submission)
	return s.reconciler.Settle(ctx, assignment, learnerID, submission), nil
}

func (s *quizService) submitOnce(ctx context.Context, attempt models.Attempt, learnerID string, answers map[string]interface{}, reason string) (models.Submission, error) {
	if submission, done := s.memo(ctx, attempt.ID); done {
		observability.QuizSubmits().WithLabelValues(reason, "duplicate").Inc()
		return submission, nil
	}

	owner := s.nodeID + ":" + reason + ":" + uuid.NewString()
	claimed, err := s.store.ClaimSubmit(ctx, attempt.ID, owner, s.cfg.ClaimTTL)
	if err != nil {
		// The backend still collapses duplicates on the attempt id.
		s.logger.Warn().Err(err).Str("attempt_id", attempt.ID).Msg("submit claim unavailable, relying on backend idempotency")
		claimed = true
	}
	if !claimed {
		if submission, done := s.memo(ctx, attempt.ID); done {
			return submission, nil
		}
		return models.Submission{}, ErrSubmitInProgress
	}

	if answers == nil {
		draft, err := s.store.Draft(ctx, attempt.ID)
		switch {
		case err == nil:
			answers = draft.Answers
		case errors.Is(err, repository.ErrCacheMiss):
			answers = map[string]interface{}{}
		default:
			s.logger.Warn().Err(err).Str("attempt_id", attempt.ID).Msg("failed to load quiz draft")
			answers = map[string]interface{}{}
		}
	}

	submission, err := s.backend.SubmitAttempt(ctx, lms.SubmitAttemptRequest{
		AttemptID: attempt.ID,
		LearnerID: learnerID,
		Answers:   answers,
		Reason:    reason,
	})
	switch {
	case err == nil:
	case errors.Is(err, lms.ErrConflict):
		// Already handed in elsewhere; adopt the recorded submission.
		submission, err = s.findAttemptSubmission(ctx, attempt, learnerID)
	default:
		err = backendError("submit attempt", err, ErrAttemptNotFound)
	}
	if err != nil {
		if releaseErr := s.store.ReleaseSubmit(context.WithoutCancel(ctx), attempt.ID, owner); releaseErr != nil {
			s.logger.Warn().Err(releaseErr).Str("attempt_id", attempt.ID).Msg("failed to release submit claim")
		}
		return models.Submission{}, err
	}

	s.submitted.Store(attempt.ID, submission)
	if err := s.store.SaveSubmitResult(ctx, attempt.ID, submission, s.cfg.SubmitTTL); err != nil {
		s.logger.Warn().Err(err).Str("attempt_id", attempt.ID).Msg("failed to memoise quiz submission")
	}
	if err := s.store.DeleteDraft(ctx, attempt.ID); err != nil {
		s.logger.Debug().Err(err).Str("attempt_id", attempt.ID).Msg("failed to clear quiz draft")
	}

	action := models.ActionQuizSubmitted
	if reason == SubmitReasonTimeout {
		action = models.ActionQuizAutoSubmitted
	}
	journal(ctx, s.journal, s.logger, LifecycleEntry{
		LearnerID:    learnerID,
		AssignmentID: attempt.AssignmentID,
		SubmissionID: submission.ID,
		AttemptID:    attempt.ID,
		Action:       action,
		Metadata:     map[string]interface{}{"reason": reason, "answers": len(answers)},
	})
	observability.QuizSubmits().WithLabelValues(reason, "accepted").Inc()
	return submission, nil
}

// OpenTimer starts the countdown for an attempt. The caller owns the returned timer and must
// Stop it when the learner leaves; an expiry submits with reason timeout.
func (s *quizService) OpenTimer(ctx context.Context, attemptID, learnerID string, emit func(dto.TimerFrame)) (*QuizTimer, error) {
	attempt, err := s.attempt(ctx, attemptID, learnerID)
	if err != nil {
		return nil, err
	}
	if _, done := s.memo(ctx, attemptID); done {
		return nil, fmt.Errorf("%w: attempt already submitted", ErrSubmissionClosed)
	}
	assignment, err := s.catalog.Load(ctx, attempt.AssignmentID)
	if err != nil {
		return nil, err
	}

	submitCtx := context.WithoutCancel(ctx)
	timer := NewQuizTimer(QuizTimerConfig{
		TimeLimitMinutes: assignment.TimeLimitMinutes,
		StartedAt:        attempt.StartedAt,
		Interval:         s.cfg.TickInterval,
		Now:              s.now,
		OnTick: func(remaining time.Duration) {
			emit(dto.TimerFrame{Type: dto.TimerFrameTick, RemainingSeconds: int64(math.Ceil(remaining.Seconds())), Limited: true})
		},
		OnExpire: func() {
			result, err := s.Submit(submitCtx, attemptID, learnerID, nil, SubmitReasonTimeout)
			if err != nil {
				s.logger.Error().Err(err).Str("attempt_id", attemptID).Msg("auto-submit failed")
				emit(dto.TimerFrame{Type: dto.TimerFrameError, Limited: true, Message: "time is up but the quiz could not be submitted, please submit manually"})
				return
			}
			emit(dto.TimerFrame{Type: dto.TimerFrameSubmitted, Limited: true, Result: &result})
		},
	})

	if !timer.Limited() {
		emit(dto.TimerFrame{Type: dto.TimerFrameUntimed})
		timer.Start()
		return timer, nil
	}

	observability.QuizTimersActive().Inc()
	timer.Start()
	go func() {
		<-timer.Done()
		observability.QuizTimersActive().Dec()
	}()
	return timer, nil
}

func (s *quizService) attempt(ctx context.Context, attemptID, learnerID string) (models.Attempt, error) {
	if strings.TrimSpace(attemptID) == "" {
		return models.Attempt{}, invalid("attempt_id", "attempt is required")
	}
	attempt, err := s.backend.GetAttempt(ctx, attemptID)
	if err != nil {
		return models.Attempt{}, backendError("load attempt", err, ErrAttemptNotFound)
	}
	if attempt.LearnerID != "" && attempt.LearnerID != learnerID {
		return models.Attempt{}, ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *quizService) memo(ctx context.Context, attemptID string) (models.Submission, bool) {
	if value, ok := s.submitted.Load(attemptID); ok {
		return value.(models.Submission), true
	}
	submission, err := s.store.SubmitResult(ctx, attemptID)
	if err == nil {
		s.submitted.Store(attemptID, submission)
		return submission, true
	}
	if !errors.Is(err, repository.ErrCacheMiss) {
		s.logger.Warn().Err(err).Str("attempt_id", attemptID).Msg("failed to read submit memo")
	}
	return models.Submission{}, false
}

func (s *quizService) findAttemptSubmission(ctx context.Context, attempt models.Attempt, learnerID string) (models.Submission, error) {
	submissions, err := s.backend.ListSubmissions(ctx, attempt.AssignmentID, learnerID)
	if err != nil {
		return models.Submission{}, backendError("list submissions", err, ErrAssignmentNotFound)
	}
	for _, submission := range submissions {
		if submission.AttemptID == attempt.ID {
			return submission, nil
		}
	}
	return models.Submission{}, fmt.Errorf("%w: attempt %s reported as submitted but no record found", ErrSubmissionNotFound, attempt.ID)
}
