package service

import (
	"context"

	"github.com/noah-isme/gema-submission-gateway/internal/models"
	"github.com/noah-isme/gema-submission-gateway/pkg/lms"
)

// LMSBackend is the part of the LMS client the lifecycle services depend on.
type LMSBackend interface {
	GetAssignment(ctx context.Context, assignmentID string) (models.Assignment, error)
	ListAssignments(ctx context.Context, learnerID string) ([]models.Assignment, error)
	GetQuestionSet(ctx context.Context, questionSetID string) (models.QuestionSet, error)
	ListAttempts(ctx context.Context, assignmentID, learnerID string) ([]models.Attempt, error)
	GetAttempt(ctx context.Context, attemptID string) (models.Attempt, error)
	StartAttempt(ctx context.Context, req lms.StartAttemptRequest) (models.Attempt, error)
	RegisterSubmission(ctx context.Context, req lms.RegisterRequest) (lms.Registration, error)
	CompleteUpload(ctx context.Context, submissionID, storeURL string) (models.Submission, error)
	SubmitAttempt(ctx context.Context, req lms.SubmitAttemptRequest) (models.Submission, error)
	ListSubmissions(ctx context.Context, assignmentID, learnerID string) ([]models.Submission, error)
	DownloadSubmission(ctx context.Context, submissionID string) (lms.Download, error)
}

// PayloadUploader performs the direct PUT to object storage.
type PayloadUploader interface {
	Upload(ctx context.Context, uploadURL string, payload []byte, contentType string) error
}
