package models

import (
	"strings"
	"time"
)

// AnswerVisibility controls when quiz answers are revealed to learners.
type AnswerVisibility string

const (
	// AnswerVisibilityImmediately reveals answers as soon as the attempt is submitted.
	AnswerVisibilityImmediately AnswerVisibility = "immediately"
	// AnswerVisibilityAfterDueDate reveals answers once the assignment is past due.
	AnswerVisibilityAfterDueDate AnswerVisibility = "after_due_date"
	// AnswerVisibilityNever keeps answers hidden.
	AnswerVisibilityNever AnswerVisibility = "never"
)

// Assignment types recognised by the upload rules.
const (
	AssignmentTypeFile    = "file"
	AssignmentTypeWriting = "writing"
	AssignmentTypeQuiz    = "quiz"
)

// Assignment is the learner-facing view of an assignment owned by the LMS backend.
type Assignment struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Type             string           `json:"type"`
	DueDate          time.Time        `json:"due_date"`
	SkillTag         string           `json:"skill_tag,omitempty"`
	TotalPoints      float64          `json:"total_points"`
	TimeLimitMinutes *int             `json:"time_limit_minutes,omitempty"`
	MaxAttempts      *int             `json:"max_attempts,omitempty"`
	AutoGradable     bool             `json:"auto_gradable"`
	AnswerVisibility AnswerVisibility `json:"answer_visibility,omitempty"`
	ReferenceFileURL string           `json:"reference_file_url,omitempty"`
	QuestionSetID    string           `json:"question_set_id,omitempty"`
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return reference.After(a.DueDate)
}

// HasQuestionSet reports whether the assignment is delivered as a quiz.
func (a Assignment) HasQuestionSet() bool {
	return strings.TrimSpace(a.QuestionSetID) != ""
}

// UnlimitedAttempts reports whether the assignment places no cap on attempts.
func (a Assignment) UnlimitedAttempts() bool {
	return a.MaxAttempts == nil || *a.MaxAttempts <= 0
}

// Timed reports whether a quiz countdown applies.
func (a Assignment) Timed() bool {
	return a.TimeLimitMinutes != nil && *a.TimeLimitMinutes > 0
}

// AnswersVisible applies the answer visibility policy at the reference time.
func (a Assignment) AnswersVisible(reference time.Time, submitted bool) bool {
	switch a.AnswerVisibility {
	case AnswerVisibilityImmediately:
		return submitted
	case AnswerVisibilityNever:
		return false
	default:
		return a.IsPastDue(reference)
	}
}

// QuestionSet carries quiz-level overrides for assignment settings.
type QuestionSet struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	QuestionCount    int               `json:"question_count"`
	TimeLimitMinutes *int              `json:"time_limit_minutes,omitempty"`
	MaxAttempts      *int              `json:"max_attempts,omitempty"`
	AnswerVisibility *AnswerVisibility `json:"answer_visibility,omitempty"`
}
