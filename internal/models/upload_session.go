package models

import (
	"strings"
	"time"
)

// UploadSession is the cached pointer to a registered submission whose payload may still be missing.
// It is advisory only and is always reconciled against the backend record before use.
type UploadSession struct {
	SubmissionID string    `json:"submission_id"`
	AssignmentID string    `json:"assignment_id"`
	LearnerID    string    `json:"learner_id"`
	FileName     string    `json:"file_name"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	UploadURL    string    `json:"upload_url"`
	StoreURL     string    `json:"store_url"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the presigned URL can no longer be used.
func (s UploadSession) Expired(reference time.Time) bool {
	if strings.TrimSpace(s.UploadURL) == "" {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !reference.Before(s.ExpiresAt)
}

// QuizDraft holds answers saved while a quiz attempt is in progress.
type QuizDraft struct {
	AttemptID    string                 `json:"attempt_id"`
	AssignmentID string                 `json:"assignment_id"`
	LearnerID    string                 `json:"learner_id"`
	Answers      map[string]interface{} `json:"answers"`
	SavedAt      time.Time              `json:"saved_at"`
}
