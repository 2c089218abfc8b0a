package models

import (
	"time"

	"gorm.io/datatypes"
)

// Lifecycle actions recorded in the journal and fanned out to subscribers.
const (
	ActionAttemptStarted       = "attempt.started"
	ActionAttemptConflict      = "attempt.conflict"
	ActionAttemptUnknown       = "attempt.outcome_unknown"
	ActionSubmissionRegistered = "submission.registered"
	ActionUploadCompleted      = "upload.completed"
	ActionUploadFailed         = "upload.failed"
	ActionQuizAutoSubmitted    = "quiz.auto_submitted"
	ActionQuizSubmitted        = "quiz.submitted"
	ActionScoreAdvisory        = "score.ai_advisory"
	ActionRefreshStale         = "submission.refresh_stale"
)

// LifecycleEvent captures one step of a learner's submission lifecycle.
type LifecycleEvent struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	LearnerID    string            `gorm:"size:64;not null;index" json:"learner_id"`
	AssignmentID string            `gorm:"size:64;not null;index" json:"assignment_id"`
	SubmissionID string            `gorm:"size:64" json:"submission_id,omitempty"`
	AttemptID    string            `gorm:"size:64" json:"attempt_id,omitempty"`
	Action       string            `gorm:"size:64;not null" json:"action"`
	Metadata     datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt    time.Time         `json:"created_at"`
}
