package dto

import (
	"time"

	"github.com/noah-isme/gema-submission-gateway/internal/models"
)

// LifecycleEventListRequest filters the learner's journal.
type LifecycleEventListRequest struct {
	Page         int    `query:"page" validate:"omitempty,min=1"`
	PageSize     int    `query:"page_size" validate:"omitempty,min=1,max=100"`
	AssignmentID string `query:"assignment_id" validate:"omitempty,max=64"`
	SubmissionID string `query:"submission_id" validate:"omitempty,max=64"`
	Action       string `query:"action" validate:"omitempty,max=64"`
	LearnerID    string `query:"-"`
}

// LifecycleEventResponse is one serialized journal entry.
type LifecycleEventResponse struct {
	ID           uint                   `json:"id"`
	AssignmentID string                 `json:"assignment_id"`
	SubmissionID string                 `json:"submission_id,omitempty"`
	AttemptID    string                 `json:"attempt_id,omitempty"`
	Action       string                 `json:"action"`
	Metadata     map[string]interface{} `json:"metadata"`
	CreatedAt    time.Time              `json:"created_at"`
}

// LifecycleEventListResponse wraps a page of journal entries.
type LifecycleEventListResponse struct {
	Items      []LifecycleEventResponse `json:"items"`
	Pagination PaginationMeta           `json:"pagination"`
}

// NewLifecycleEventResponse converts a journal model into a DTO.
func NewLifecycleEventResponse(model models.LifecycleEvent) LifecycleEventResponse {
	metadata := map[string]interface{}{}
	for key, value := range model.Metadata {
		metadata[key] = value
	}
	return LifecycleEventResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		SubmissionID: model.SubmissionID,
		AttemptID:    model.AttemptID,
		Action:       model.Action,
		Metadata:     metadata,
		CreatedAt:    model.CreatedAt,
	}
}
