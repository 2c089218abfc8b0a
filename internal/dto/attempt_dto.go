package dto

import (
	"time"

	"github.com/noah-isme/gema-submission-gateway/internal/models"
)

// AttemptEligibilityResponse tells the client whether "Start Quiz" is available.
// Overdue is a warning only.
type AttemptEligibilityResponse struct {
	AssignmentID string `json:"assignment_id"`
	CanStart     bool   `json:"can_start"`
	Used         int    `json:"used"`
	Max          *int   `json:"max"`
	Remaining    *int   `json:"remaining"`
	Overdue      bool   `json:"overdue"`
	Warning      string `json:"warning,omitempty"`
}

// AttemptResponse describes a started attempt.
type AttemptResponse struct {
	ID               string     `json:"id"`
	AssignmentID     string     `json:"assignment_id"`
	Ordinal          int        `json:"ordinal"`
	StartedAt        time.Time  `json:"started_at"`
	TimeLimitMinutes *int       `json:"time_limit_minutes"`
	Deadline         *time.Time `json:"deadline"`
}

// NewAttemptResponse converts an attempt and computes its deadline.
func NewAttemptResponse(model models.Attempt, timeLimitMinutes *int) AttemptResponse {
	response := AttemptResponse{
		ID:               model.ID,
		AssignmentID:     model.AssignmentID,
		Ordinal:          model.Ordinal,
		StartedAt:        model.StartedAt,
		TimeLimitMinutes: timeLimitMinutes,
	}
	if deadline, ok := model.Deadline(timeLimitMinutes); ok {
		response.Deadline = &deadline
	}
	return response
}
