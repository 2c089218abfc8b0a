package lms

import "time"

// Registration is the backend's answer to an intent-to-submit call.
type Registration struct {
	SubmissionID string    `json:"submission_id"`
	UploadURL    string    `json:"upload_url"`
	StoreURL     string    `json:"store_url"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RegisterRequest carries the metadata recorded before any byte is uploaded.
type RegisterRequest struct {
	AssignmentID string `json:"assignment_id"`
	LearnerID    string `json:"learner_id"`
	FileName     string `json:"file_name"`
	ContentType  string `json:"content_type"`
	SizeBytes    int64  `json:"size_bytes"`
}

// StartAttemptRequest starts a quiz attempt for the ordinal the client expects to consume.
type StartAttemptRequest struct {
	AssignmentID   string `json:"-"`
	LearnerID      string `json:"learner_id"`
	Ordinal        int    `json:"ordinal"`
	IdempotencyKey string `json:"-"`
}

// SubmitAttemptRequest hands in quiz answers. The attempt id doubles as the idempotency key.
type SubmitAttemptRequest struct {
	AttemptID string                 `json:"-"`
	LearnerID string                 `json:"learner_id"`
	Answers   map[string]interface{} `json:"answers"`
	Reason    string                 `json:"reason"`
}

// Download is a short-lived link to a stored submission.
type Download struct {
	URL       string    `json:"download_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type completeUploadRequest struct {
	StoreURL string `json:"store_url"`
}

