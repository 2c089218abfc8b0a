package models

import (
	"strings"
	"time"
)

// Submission represents delivered work for an assignment as recorded by the LMS backend.
type Submission struct {
	ID              string    `json:"id"`
	AssignmentID    string    `json:"assignment_id"`
	LearnerID       string    `json:"learner_id"`
	AttemptID       string    `json:"attempt_id,omitempty"`
	StoredReference *string   `json:"stored_reference"`
	FileName        string    `json:"file_name"`
	ContentType     string    `json:"content_type"`
	Score           *float64  `json:"score"`
	Feedback        *string   `json:"feedback"`
	IsAIScore       *bool     `json:"is_ai_score"`
	CreatedAt       time.Time `json:"created_at"`
}

// HasPayload reports whether the upload phase completed for this record.
func (s Submission) HasPayload() bool {
	return s.StoredReference != nil && strings.TrimSpace(*s.StoredReference) != ""
}

// IsGraded reports whether a score is attached, regardless of its origin.
func (s Submission) IsGraded() bool {
	return s.Score != nil
}

// ScoredByAI reports whether the attached score is machine generated.
// A missing flag means the score came from an instructor.
func (s Submission) ScoredByAI() bool {
	return s.Score != nil && s.IsAIScore != nil && *s.IsAIScore
}

// Delivered reports whether the record counts as work handed in.
func (s Submission) Delivered() bool {
	return s.HasPayload() || s.IsGraded()
}

// LatestDelivered returns the newest delivered submission, or nil when none exists.
// Payload-less records left behind by an interrupted upload are ignored.
func LatestDelivered(submissions []Submission) *Submission {
	var latest *Submission
	for i := range submissions {
		candidate := submissions[i]
		if !candidate.Delivered() {
			continue
		}
		if latest == nil || candidate.CreatedAt.After(latest.CreatedAt) {
			latest = &submissions[i]
		}
	}
	return latest
}

// FindSubmission looks up a submission by identifier.
func FindSubmission(submissions []Submission, id string) (Submission, bool) {
	for _, submission := range submissions {
		if submission.ID == id {
			return submission, true
		}
	}
	return Submission{}, false
}
