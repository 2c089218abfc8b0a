package dto

import "time"

// Timer frame types pushed over the websocket.
const (
	TimerFrameTick      = "tick"
	TimerFrameUntimed   = "untimed"
	TimerFrameSubmitted = "submitted"
	TimerFrameError     = "error"
)

// QuizDraftRequest saves in-progress answers.
type QuizDraftRequest struct {
	Answers map[string]interface{} `json:"answers" validate:"required"`
}

// QuizDraftResponse acknowledges a saved draft.
type QuizDraftResponse struct {
	AttemptID   string    `json:"attempt_id"`
	AnswerCount int       `json:"answer_count"`
	SavedAt     time.Time `json:"saved_at"`
}

// QuizSubmitRequest hands in a quiz. Missing answers fall back to the saved draft.
type QuizSubmitRequest struct {
	Answers map[string]interface{} `json:"answers"`
}

// TimerFrame is one message of the countdown stream.
type TimerFrame struct {
	Type             string                    `json:"type"`
	RemainingSeconds int64                     `json:"remaining_seconds"`
	Limited          bool                      `json:"limited"`
	Result           *SubmissionResultResponse `json:"result,omitempty"`
	Message          string                    `json:"message,omitempty"`
}
