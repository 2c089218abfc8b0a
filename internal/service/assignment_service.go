package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-submission-gateway/internal/dto"
	"github.com/noah-isme/gema-submission-gateway/internal/models"
)

const listConcurrency = 4

// AssignmentService derives the learner-facing status of assignments from fresh backend reads.
type AssignmentService interface {
	Status(ctx context.Context, assignmentID, learnerID string) (dto.AssignmentStatusResponse, error)
	List(ctx context.Context, learnerID, skill string) ([]dto.AssignmentStatusResponse, error)
	Grouped(ctx context.Context, learnerID, skill string) ([]dto.SkillGroupResponse, error)
}

type assignmentService struct {
	catalog    *AssignmentCatalog
	backend    LMSBackend
	reconciler *Reconciler
	logger     zerolog.Logger
	now        func() time.Time
}

// assignmentView keeps the submission a status view was derived from.
type assignmentView struct {
	response dto.AssignmentStatusResponse
	latest   *models.Submission
}

// NewAssignmentService builds the status view service.
func NewAssignmentService(catalog *AssignmentCatalog, backend LMSBackend, reconciler *Reconciler, logger zerolog.Logger) AssignmentService {
	return &assignmentService{
		catalog:    catalog,
		backend:    backend,
		reconciler: reconciler,
		logger:     logger.With().Str("component", "assignment_service").Logger(),
		now:        time.Now,
	}
}

func (s *assignmentService) Status(ctx context.Context, assignmentID, learnerID string) (dto.AssignmentStatusResponse, error) {
	assignment, err := s.catalog.Load(ctx, assignmentID)
	if err != nil {
		return dto.AssignmentStatusResponse{}, err
	}

	view, err := s.view(ctx, assignment, learnerID)
	if err != nil {
		return dto.AssignmentStatusResponse{}, err
	}
	return view.response, nil
}

func (s *assignmentService) List(ctx context.Context, learnerID, skill string) ([]dto.AssignmentStatusResponse, error) {
	views, err := s.views(ctx, learnerID, skill)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.AssignmentStatusResponse, 0, len(views))
	for _, view := range views {
		responses = append(responses, view.response)
	}
	return responses, nil
}

// Grouped partitions the learner's assignments by skill and totals instructor-final scores per group.
func (s *assignmentService) Grouped(ctx context.Context, learnerID, skill string) ([]dto.SkillGroupResponse, error) {
	views, err := s.views(ctx, learnerID, skill)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.AssignmentStatusResponse, 0, len(views))
	latest := make(map[string]models.Submission, len(views))
	possible := make(map[string]float64, len(views))
	for _, view := range views {
		responses = append(responses, view.response)
		possible[view.response.AssignmentID] = view.response.TotalPoints
		if view.latest != nil {
			latest[view.response.AssignmentID] = *view.latest
		}
	}

	groups := GroupBySkill(responses)
	for i := range groups {
		scored := make([]models.Submission, 0, len(groups[i].Assignments))
		for _, assignment := range groups[i].Assignments {
			if submission, ok := latest[assignment.AssignmentID]; ok {
				scored = append(scored, submission)
			}
		}
		groups[i].Aggregate = AggregateFinal(scored, possible)
	}
	return groups, nil
}

func (s *assignmentService) views(ctx context.Context, learnerID, skill string) ([]assignmentView, error) {
	assignments, err := s.catalog.List(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	assignments = FilterBySkill(assignments, skill)

	views := make([]assignmentView, len(assignments))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(listConcurrency)
	for i := range assignments {
		i := i
		group.Go(func() error {
			view, err := s.view(groupCtx, assignments[i], learnerID)
			if err != nil {
				return err
			}
			views[i] = view
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		s.logger.Error().Err(err).Str("learner_id", learnerID).Msg("failed to build assignment overview")
		return nil, err
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].response.DueDate.Before(views[j].response.DueDate)
	})
	return views, nil
}

func (s *assignmentService) view(ctx context.Context, assignment models.Assignment, learnerID string) (assignmentView, error) {
	var (
		submissions []models.Submission
		attempts    []models.Attempt
		mu          sync.Mutex
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		listed, err := s.backend.ListSubmissions(groupCtx, assignment.ID, learnerID)
		if err != nil {
			return backendError("list submissions", err, ErrAssignmentNotFound)
		}
		mu.Lock()
		submissions = listed
		mu.Unlock()
		return nil
	})
	if assignment.HasQuestionSet() {
		group.Go(func() error {
			listed, err := s.backend.ListAttempts(groupCtx, assignment.ID, learnerID)
			if err != nil {
				return backendError("list attempts", err, ErrAssignmentNotFound)
			}
			mu.Lock()
			attempts = listed
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return assignmentView{}, err
	}

	return buildView(s.reconciler, assignment, submissions, attempts, s.now()), nil
}

// buildView derives the display state of one assignment. It performs no I/O.
func buildView(reconciler *Reconciler, assignment models.Assignment, submissions []models.Submission, attempts []models.Attempt, now time.Time) assignmentView {
	latest := models.LatestDelivered(submissions)
	status := models.DeriveStatus(assignment.DueDate, now, latest)

	response := dto.AssignmentStatusResponse{
		AssignmentID:     assignment.ID,
		Title:            assignment.Title,
		Type:             assignmentType(assignment),
		SkillTag:         strings.TrimSpace(assignment.SkillTag),
		DueDate:          assignment.DueDate,
		TotalPoints:      assignment.TotalPoints,
		Status:           string(status),
		CanSubmit:        models.CanSubmit(status, assignment.DueDate, now),
		Affordance:       models.Affordance(assignment.HasQuestionSet()),
		Overdue:          assignment.IsPastDue(now),
		AnswersVisible:   assignment.AnswersVisible(now, latest != nil),
		ReferenceFileURL: assignment.ReferenceFileURL,
		Settings:         dto.NewEffectiveSettings(assignment),
	}
	if latest != nil {
		submission := reconciler.Submission(*latest, assignment.TotalPoints)
		response.Submission = &submission
		response.Score = submission.Score
	}
	if assignment.HasQuestionSet() {
		summary := attemptSummary(assignment, attempts)
		response.Attempts = &summary
	}

	return assignmentView{response: response, latest: latest}
}
