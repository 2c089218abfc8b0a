package service

import "github.com/noah-isme/gema-submission-gateway/internal/models"

// ResolveSetting returns the first configured value: question set, then assignment, then fallback.
func ResolveSetting[T any](question, assignment, fallback *T) *T {
	if question != nil {
		return question
	}
	if assignment != nil {
		return assignment
	}
	return fallback
}

// ApplyQuestionSet resolves quiz-level overrides once, at load time, so every caller
// reads effective settings straight from the assignment.
func ApplyQuestionSet(assignment models.Assignment, set *models.QuestionSet) models.Assignment {
	var (
		questionLimit      *int
		questionAttempts   *int
		questionVisibility *models.AnswerVisibility
		assignmentVisible  *models.AnswerVisibility
	)
	if set != nil {
		questionLimit = set.TimeLimitMinutes
		questionAttempts = set.MaxAttempts
		questionVisibility = set.AnswerVisibility
	}
	if assignment.AnswerVisibility != "" {
		visibility := assignment.AnswerVisibility
		assignmentVisible = &visibility
	}
	defaultVisibility := models.AnswerVisibilityAfterDueDate

	effective := assignment
	effective.TimeLimitMinutes = ResolveSetting[int](questionLimit, assignment.TimeLimitMinutes, nil)
	effective.MaxAttempts = ResolveSetting[int](questionAttempts, assignment.MaxAttempts, nil)
	effective.AnswerVisibility = *ResolveSetting(questionVisibility, assignmentVisible, &defaultVisibility)
	return effective
}
