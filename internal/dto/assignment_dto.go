package dto

import (
	"time"

	"github.com/noah-isme/gema-submission-gateway/internal/models"
)

// AssignmentListRequest filters the learner's assignment overview.
type AssignmentListRequest struct {
	Skill   string `query:"skill" validate:"omitempty,max=64"`
	Grouped bool   `query:"grouped"`
}

// ScorePresentation is the display record for a score. Origin is one of ai_advisory or instructor.
type ScorePresentation struct {
	Value       float64 `json:"value"`
	TotalPoints float64 `json:"total_points"`
	Origin      string  `json:"origin"`
	Advisory    bool    `json:"advisory"`
	Final       bool    `json:"final"`
	Label       string  `json:"label"`
	Feedback    string  `json:"feedback,omitempty"`
}

// ScoreAggregate totals instructor-final scores. Advisory scores are only counted, never summed.
type ScoreAggregate struct {
	FinalTotal    float64 `json:"final_total"`
	FinalCount    int     `json:"final_count"`
	PossibleTotal float64 `json:"possible_total"`
	AdvisoryCount int     `json:"advisory_count"`
}

// EffectiveSettings are the assignment settings after quiz overrides were applied.
type EffectiveSettings struct {
	TimeLimitMinutes *int   `json:"time_limit_minutes"`
	MaxAttempts      *int   `json:"max_attempts"`
	AnswerVisibility string `json:"answer_visibility"`
}

// AttemptSummary reports how many quiz attempts were consumed.
type AttemptSummary struct {
	Used      int  `json:"used"`
	Max       *int `json:"max"`
	Remaining *int `json:"remaining"`
	CanStart  bool `json:"can_start"`
}

// AssignmentStatusResponse is the derived view of one assignment for the learner.
type AssignmentStatusResponse struct {
	AssignmentID     string              `json:"assignment_id"`
	Title            string              `json:"title"`
	Type             string              `json:"type"`
	SkillTag         string              `json:"skill_tag"`
	DueDate          time.Time           `json:"due_date"`
	TotalPoints      float64             `json:"total_points"`
	Status           string              `json:"status"`
	CanSubmit        bool                `json:"can_submit"`
	Affordance       string              `json:"affordance"`
	Overdue          bool                `json:"overdue"`
	AnswersVisible   bool                `json:"answers_visible"`
	ReferenceFileURL string              `json:"reference_file_url,omitempty"`
	Settings         EffectiveSettings   `json:"settings"`
	Submission       *SubmissionResponse `json:"submission"`
	Score            *ScorePresentation  `json:"score"`
	Attempts         *AttemptSummary     `json:"attempts,omitempty"`
}

// SkillGroupResponse groups assignment views under one skill tag.
type SkillGroupResponse struct {
	SkillTag    string                     `json:"skill_tag"`
	Label       string                     `json:"label"`
	Aggregate   ScoreAggregate             `json:"aggregate"`
	Assignments []AssignmentStatusResponse `json:"assignments"`
}

// NewEffectiveSettings copies the resolved settings of an assignment.
func NewEffectiveSettings(model models.Assignment) EffectiveSettings {
	return EffectiveSettings{
		TimeLimitMinutes: model.TimeLimitMinutes,
		MaxAttempts:      model.MaxAttempts,
		AnswerVisibility: string(model.AnswerVisibility),
	}
}
