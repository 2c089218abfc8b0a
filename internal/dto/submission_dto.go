package dto

import (
	"time"

	"github.com/noah-isme/gema-submission-gateway/internal/models"
)

// SubmissionRegisterRequest records the intent to submit before the browser uploads directly.
type SubmissionRegisterRequest struct {
	AssignmentID string `json:"assignment_id" validate:"required,max=64"`
	FileName     string `json:"file_name" validate:"required,max=255"`
	ContentType  string `json:"content_type" validate:"omitempty,max=255"`
	SizeBytes    int64  `json:"size_bytes" validate:"required,gt=0"`
}

// SubmissionUploadRequest describes a multipart upload handled by the gateway.
type SubmissionUploadRequest struct {
	AssignmentID string `form:"assignment_id" validate:"required,max=64"`
	FileName     string `validate:"required,max=255"`
	ContentType  string `validate:"omitempty,max=255"`
	SizeBytes    int64  `validate:"gt=0"`
}

// SubmissionRegisterResponse hands the presigned URL back to the client.
type SubmissionRegisterResponse struct {
	SubmissionID string    `json:"submission_id"`
	UploadURL    string    `json:"upload_url"`
	StoreURL     string    `json:"store_url"`
	ContentType  string    `json:"content_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SubmissionResponse is the learner-facing view of a submission record.
type SubmissionResponse struct {
	ID           string             `json:"id"`
	AssignmentID string             `json:"assignment_id"`
	AttemptID    string             `json:"attempt_id,omitempty"`
	FileName     string             `json:"file_name"`
	ContentType  string             `json:"content_type"`
	HasPayload   bool               `json:"has_payload"`
	Graded       bool               `json:"graded"`
	Score        *ScorePresentation `json:"score"`
	CreatedAt    time.Time          `json:"created_at"`
}

// SubmissionResultResponse is returned after any mutation. Stale means the list refresh
// did not observe the new record in time and the client should offer a manual reload.
type SubmissionResultResponse struct {
	Submission SubmissionResponse `json:"submission"`
	Status     string             `json:"status"`
	CanSubmit  bool               `json:"can_submit"`
	Stale      bool               `json:"stale"`
}

// DownloadResponse carries a short-lived download link.
type DownloadResponse struct {
	URL       string    `json:"download_url"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// NewSubmissionResponse converts a submission without score details.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		AttemptID:    model.AttemptID,
		FileName:     model.FileName,
		ContentType:  model.ContentType,
		HasPayload:   model.HasPayload(),
		Graded:       model.IsGraded(),
		CreatedAt:    model.CreatedAt,
	}
}
