package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-submission-gateway/internal/dto"
	"github.com/noah-isme/gema-submission-gateway/internal/models"
	"github.com/noah-isme/gema-submission-gateway/internal/observability"
	"github.com/noah-isme/gema-submission-gateway/internal/utils"
)

// Score origins. The classification is closed: a missing AI flag means instructor.
const (
	ScoreOriginAI         = "ai_advisory"
	ScoreOriginInstructor = "instructor"
)

const (
	advisoryLabel = "AI-suggested score, advisory until reviewed by your instructor"
	finalLabel    = "Final score"
)

// Reconciler presents scores and waits out read-after-write lag on the submission list.
type Reconciler struct {
	backend   LMSBackend
	delays    []time.Duration
	journal   LifecycleRecorder
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewReconciler builds a reconciler. delays is the refresh schedule after the first immediate read.
func NewReconciler(backend LMSBackend, delays []time.Duration, journal LifecycleRecorder, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		backend:   backend,
		delays:    delays,
		journal:   journal,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "score_reconciler").Logger(),
		now:       time.Now,
	}
}

// ScoreOrigin classifies a scored submission.
func ScoreOrigin(submission models.Submission) string {
	if submission.ScoredByAI() {
		return ScoreOriginAI
	}
	return ScoreOriginInstructor
}

// Present builds the score display record, or nil when the submission is not scored.
func (r *Reconciler) Present(submission models.Submission, totalPoints float64) *dto.ScorePresentation {
	if submission.Score == nil {
		return nil
	}

	origin := ScoreOrigin(submission)
	presentation := &dto.ScorePresentation{
		Value:       *submission.Score,
		TotalPoints: totalPoints,
		Origin:      origin,
		Advisory:    origin == ScoreOriginAI,
		Final:       origin == ScoreOriginInstructor,
		Label:       finalLabel,
	}
	if presentation.Advisory {
		presentation.Label = advisoryLabel
	}
	if submission.Feedback != nil {
		presentation.Feedback = strings.TrimSpace(r.sanitizer.Sanitize(*submission.Feedback))
	}

	observability.ScorePresentations().WithLabelValues(origin).Inc()
	return presentation
}

// Submission converts a submission and attaches its score presentation.
func (r *Reconciler) Submission(submission models.Submission, totalPoints float64) dto.SubmissionResponse {
	response := dto.NewSubmissionResponse(submission)
	response.Score = r.Present(submission, totalPoints)
	return response
}

// Submissions converts a list, newest first.
func (r *Reconciler) Submissions(submissions []models.Submission, totalPoints float64) []dto.SubmissionResponse {
	ordered := append([]models.Submission(nil), submissions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	responses := make([]dto.SubmissionResponse, 0, len(ordered))
	for _, submission := range ordered {
		responses = append(responses, r.Submission(submission, totalPoints))
	}
	return responses
}

// AggregateFinal totals instructor scores. AI scores are counted as pending advisories and
// never contribute to the final total.
func AggregateFinal(submissions []models.Submission, possible map[string]float64) dto.ScoreAggregate {
	var aggregate dto.ScoreAggregate
	for _, submission := range submissions {
		if submission.Score == nil {
			continue
		}
		if submission.ScoredByAI() {
			aggregate.AdvisoryCount++
			continue
		}
		aggregate.FinalTotal += *submission.Score
		aggregate.FinalCount++
		aggregate.PossibleTotal += possible[submission.AssignmentID]
	}
	return aggregate
}

// Refresh re-reads the submission list until fresh is visible in it. When the schedule runs
// out the list is returned with fresh merged in and stale set.
func (r *Reconciler) Refresh(ctx context.Context, assignmentID, learnerID string, fresh models.Submission) ([]models.Submission, bool, error) {
	list, err := utils.RetryWithDelays(ctx, r.delays, func(ctx context.Context) ([]models.Submission, bool, error) {
		submissions, err := r.backend.ListSubmissions(ctx, assignmentID, learnerID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, false, err
			}
			r.logger.Debug().Err(err).Str("submission_id", fresh.ID).Msg("refresh read failed, retrying")
			return nil, false, nil
		}
		return submissions, reflects(submissions, fresh), nil
	})

	switch {
	case err == nil:
		observability.RefreshOutcomes().WithLabelValues("visible").Inc()
		return list, false, nil
	case errors.Is(err, utils.ErrRetriesExhausted):
		observability.RefreshOutcomes().WithLabelValues("stale").Inc()
		r.logger.Warn().Str("submission_id", fresh.ID).Int("retries", len(r.delays)).Msg("submission list still stale after refresh")
		journal(ctx, r.journal, r.logger, LifecycleEntry{
			LearnerID:    learnerID,
			AssignmentID: assignmentID,
			SubmissionID: fresh.ID,
			Action:       models.ActionRefreshStale,
			Metadata:     map[string]interface{}{"retries": len(r.delays)},
		})
		return mergeSubmission(list, fresh), true, nil
	default:
		observability.RefreshOutcomes().WithLabelValues("error").Inc()
		return mergeSubmission(list, fresh), true, err
	}
}

// Settle refreshes after a mutation and derives the resulting view.
func (r *Reconciler) Settle(ctx context.Context, assignment models.Assignment, learnerID string, fresh models.Submission) dto.SubmissionResultResponse {
	if fresh.ScoredByAI() {
		journal(ctx, r.journal, r.logger, LifecycleEntry{
			LearnerID:    learnerID,
			AssignmentID: assignment.ID,
			SubmissionID: fresh.ID,
			AttemptID:    fresh.AttemptID,
			Action:       models.ActionScoreAdvisory,
			Metadata:     map[string]interface{}{"score": *fresh.Score},
		})
	}

	submissions, stale, err := r.Refresh(ctx, assignment.ID, learnerID, fresh)
	if err != nil {
		r.logger.Warn().Err(err).Str("submission_id", fresh.ID).Msg("refresh aborted")
	}

	now := r.now()
	status := models.DeriveStatus(assignment.DueDate, now, models.LatestDelivered(submissions))
	return dto.SubmissionResultResponse{
		Submission: r.Submission(fresh, assignment.TotalPoints),
		Status:     string(status),
		CanSubmit:  models.CanSubmit(status, assignment.DueDate, now),
		Stale:      stale,
	}
}

func reflects(submissions []models.Submission, fresh models.Submission) bool {
	listed, ok := models.FindSubmission(submissions, fresh.ID)
	if !ok {
		return false
	}
	if fresh.HasPayload() && !listed.HasPayload() {
		return false
	}
	if fresh.Score != nil && listed.Score == nil {
		return false
	}
	return true
}

func mergeSubmission(submissions []models.Submission, fresh models.Submission) []models.Submission {
	merged := make([]models.Submission, 0, len(submissions)+1)
	replaced := false
	for _, submission := range submissions {
		if submission.ID == fresh.ID {
			merged = append(merged, fresh)
			replaced = true
			continue
		}
		merged = append(merged, submission)
	}
	if !replaced {
		merged = append(merged, fresh)
	}
	return merged
}
