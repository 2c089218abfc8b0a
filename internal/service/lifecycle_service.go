package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-submission-gateway/internal/dto"
	"github.com/noah-isme/gema-submission-gateway/internal/models"
	"github.com/noah-isme/gema-submission-gateway/internal/observability"
	"github.com/noah-isme/gema-submission-gateway/internal/repository"
)

// LifecycleEntry captures one lifecycle step before it is persisted.
type LifecycleEntry struct {
	LearnerID    string
	AssignmentID string
	SubmissionID string
	AttemptID    string
	Action       string
	Metadata     map[string]interface{}
}

// LifecycleRecorder journals lifecycle steps.
type LifecycleRecorder interface {
	Record(ctx context.Context, entry LifecycleEntry) (models.LifecycleEvent, error)
}

// LifecycleService records and lists the submission lifecycle journal.
type LifecycleService interface {
	LifecycleRecorder
	List(ctx context.Context, req dto.LifecycleEventListRequest) (dto.LifecycleEventListResponse, error)
}

// Publisher is the subset of a NATS connection used for fan-out.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type lifecycleService struct {
	repo      repository.LifecycleEventRepository
	publisher Publisher
	subject   string
	validator *validator.Validate
	logger    zerolog.Logger
	nodeID    string
	now       func() time.Time
}

type lifecycleMessage struct {
	Source string                     `json:"source"`
	Event  dto.LifecycleEventResponse `json:"event"`
	SentAt time.Time                  `json:"sent_at"`
}

// NewLifecycleService constructs the journal. natsConn may be nil when fan-out is disabled.
func NewLifecycleService(repo repository.LifecycleEventRepository, natsConn *nats.Conn, subject string, validate *validator.Validate, logger zerolog.Logger) LifecycleService {
	var publisher Publisher
	if natsConn != nil {
		publisher = natsConn
	}
	return newLifecycleService(repo, publisher, subject, validate, logger)
}

func newLifecycleService(repo repository.LifecycleEventRepository, publisher Publisher, subject string, validate *validator.Validate, logger zerolog.Logger) *lifecycleService {
	return &lifecycleService{
		repo:      repo,
		publisher: publisher,
		subject:   strings.TrimSuffix(subject, "."),
		validator: validate,
		logger:    logger.With().Str("component", "lifecycle_service").Logger(),
		nodeID:    uuid.NewString(),
		now:       time.Now,
	}
}

func (s *lifecycleService) Record(ctx context.Context, entry LifecycleEntry) (models.LifecycleEvent, error) {
	if strings.TrimSpace(entry.Action) == "" {
		return models.LifecycleEvent{}, errors.New("action is required")
	}
	if strings.TrimSpace(entry.LearnerID) == "" || strings.TrimSpace(entry.AssignmentID) == "" {
		return models.LifecycleEvent{}, errors.New("learner and assignment are required")
	}

	model := models.LifecycleEvent{
		LearnerID:    strings.TrimSpace(entry.LearnerID),
		AssignmentID: strings.TrimSpace(entry.AssignmentID),
		SubmissionID: strings.TrimSpace(entry.SubmissionID),
		AttemptID:    strings.TrimSpace(entry.AttemptID),
		Action:       strings.ToLower(strings.TrimSpace(entry.Action)),
		Metadata:     sanitizeMetadata(entry.Metadata),
		CreatedAt:    s.now().UTC(),
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Error().Err(err).Str("action", model.Action).Msg("failed to persist lifecycle event")
		return models.LifecycleEvent{}, err
	}
	observability.LifecycleEvents().WithLabelValues(model.Action).Inc()

	if err := s.publish(model); err != nil {
		s.logger.Warn().Err(err).Str("action", model.Action).Msg("failed to publish lifecycle event")
	}

	return model, nil
}

func (s *lifecycleService) List(ctx context.Context, req dto.LifecycleEventListRequest) (dto.LifecycleEventListResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.LifecycleEventListResponse{}, validationFailure(err)
	}
	if strings.TrimSpace(req.LearnerID) == "" {
		return dto.LifecycleEventListResponse{}, invalid("learner_id", "learner is required")
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	filter := repository.LifecycleEventFilter{
		Page:         req.Page,
		PageSize:     req.PageSize,
		LearnerID:    req.LearnerID,
		AssignmentID: strings.TrimSpace(req.AssignmentID),
		SubmissionID: strings.TrimSpace(req.SubmissionID),
		Action:       strings.ToLower(strings.TrimSpace(req.Action)),
	}

	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.LifecycleEventListResponse{}, err
	}

	items := make([]dto.LifecycleEventResponse, 0, len(events))
	for _, event := range events {
		items = append(items, dto.NewLifecycleEventResponse(event))
	}

	pagination := dto.PaginationMeta{
		Page:       maxInt(req.Page, 1),
		PageSize:   req.PageSize,
		TotalItems: total,
		TotalPages: int(math.Ceil(float64(total) / float64(req.PageSize))),
	}

	return dto.LifecycleEventListResponse{Items: items, Pagination: pagination}, nil
}

func (s *lifecycleService) publish(event models.LifecycleEvent) error {
	if s.publisher == nil || s.subject == "" {
		return nil
	}

	payload, err := json.Marshal(lifecycleMessage{
		Source: s.nodeID,
		Event:  dto.NewLifecycleEventResponse(event),
		SentAt: s.now().UTC(),
	})
	if err != nil {
		return err
	}

	return s.publisher.Publish(s.subject+"."+event.Action, payload)
}

// journal records best effort. A canceled request still leaves its trail.
func journal(ctx context.Context, recorder LifecycleRecorder, logger zerolog.Logger, entry LifecycleEntry) {
	if recorder == nil {
		return
	}
	if _, err := recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		logger.Warn().Err(err).Str("action", entry.Action).Msg("lifecycle journal write failed")
	}
}

func sanitizeMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	sanitized := datatypes.JSONMap{}
	for key, value := range metadata {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "token") || strings.Contains(lower, "url") {
			sanitized[key] = "***"
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
