package models

import (
	"fmt"
	"time"
)

// Attempt is a single start of a timed quiz. Its existence consumes one attempt.
type Attempt struct {
	ID             string    `json:"id"`
	AssignmentID   string    `json:"assignment_id"`
	LearnerID      string    `json:"learner_id"`
	Ordinal        int       `json:"ordinal"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	StartedAt      time.Time `json:"started_at"`
}

// AttemptIdempotencyKey builds the key that lets the backend collapse retried starts.
func AttemptIdempotencyKey(assignmentID, learnerID string, ordinal int) string {
	return fmt.Sprintf("attempt:%s:%s:%d", assignmentID, learnerID, ordinal)
}

// Deadline returns the moment the attempt runs out of time.
func (a Attempt) Deadline(timeLimitMinutes *int) (time.Time, bool) {
	if timeLimitMinutes == nil || *timeLimitMinutes <= 0 {
		return time.Time{}, false
	}
	return a.StartedAt.Add(time.Duration(*timeLimitMinutes) * time.Minute), true
}
