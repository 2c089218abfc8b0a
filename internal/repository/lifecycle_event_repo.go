package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-submission-gateway/internal/models"
)

// LifecycleEventFilter narrows journal queries.
type LifecycleEventFilter struct {
	Page         int
	PageSize     int
	LearnerID    string
	AssignmentID string
	SubmissionID string
	Action       string
}

// LifecycleEventRepository persists the submission lifecycle journal.
type LifecycleEventRepository interface {
	Create(ctx context.Context, event *models.LifecycleEvent) error
	List(ctx context.Context, filter LifecycleEventFilter) ([]models.LifecycleEvent, int64, error)
}

type lifecycleEventRepository struct {
	db *gorm.DB
}

// NewLifecycleEventRepository constructs the journal repository.
func NewLifecycleEventRepository(db *gorm.DB) LifecycleEventRepository {
	return &lifecycleEventRepository{db: db}
}

func (r *lifecycleEventRepository) Create(ctx context.Context, event *models.LifecycleEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *lifecycleEventRepository) List(ctx context.Context, filter LifecycleEventFilter) ([]models.LifecycleEvent, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.LifecycleEvent{})

	if filter.LearnerID != "" {
		query = query.Where("learner_id = ?", filter.LearnerID)
	}
	if filter.AssignmentID != "" {
		query = query.Where("assignment_id = ?", filter.AssignmentID)
	}
	if filter.SubmissionID != "" {
		query = query.Where("submission_id = ?", filter.SubmissionID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var events []models.LifecycleEvent
	if err := query.Order("created_at DESC").Order("id DESC").Find(&events).Error; err != nil {
		return nil, 0, err
	}

	return events, total, nil
}
