package models

import "time"

// SubmissionStatus is the display state derived for an assignment.
type SubmissionStatus string

const (
	StatusPending      SubmissionStatus = "pending"
	StatusSubmitted    SubmissionStatus = "submitted"
	StatusGraded       SubmissionStatus = "graded"
	StatusNotSubmitted SubmissionStatus = "not_submitted"
)

// Affordances select which submit control the client shows.
const (
	AffordanceQuiz = "quiz"
	AffordanceFile = "file"
)

// DeriveStatus maps the due date, the current time and the latest submission to a display state.
// A submission without a stored reference and without a score counts as no submission.
func DeriveStatus(dueAt, now time.Time, submission *Submission) SubmissionStatus {
	switch {
	case submission != nil && submission.Score != nil:
		return StatusGraded
	case submission != nil && submission.HasPayload():
		return StatusSubmitted
	case now.After(dueAt):
		return StatusNotSubmitted
	default:
		return StatusPending
	}
}

// CanSubmit reports whether a new submission is accepted. Resubmission is only open until the due date.
func CanSubmit(status SubmissionStatus, dueAt, now time.Time) bool {
	switch status {
	case StatusPending:
		return true
	case StatusSubmitted:
		return !now.After(dueAt)
	default:
		return false
	}
}

// Affordance returns the submit control for an assignment.
func Affordance(hasQuestionURL bool) string {
	if hasQuestionURL {
		return AffordanceQuiz
	}
	return AffordanceFile
}
