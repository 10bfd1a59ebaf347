package models

import "time"

type AttemptState string

const (
	AttemptInProgress AttemptState = "inprogress"
	AttemptOverdue    AttemptState = "overdue"
	AttemptFinished   AttemptState = "finished"
	AttemptAbandoned  AttemptState = "abandoned"
)

// GradingPolicy selects which attempt(s) of a participant count toward the
// final grade when the participant has more than one finished attempt.
type GradingPolicy string

const (
	GradeFirstAttempt   GradingPolicy = "first"
	GradeHighestAttempt GradingPolicy = "highest"
	GradeLastAttempt    GradingPolicy = "last"
	GradeAverageAttempt GradingPolicy = "average"
)

// GradingPolicies lists all policies in canonical order. Per-policy
// aggregates are always computed for every entry in this list.
var GradingPolicies = []GradingPolicy{
	GradeFirstAttempt,
	GradeHighestAttempt,
	GradeLastAttempt,
	GradeAverageAttempt,
}

func (p GradingPolicy) Valid() bool {
	switch p {
	case GradeFirstAttempt, GradeHighestAttempt, GradeLastAttempt, GradeAverageAttempt:
		return true
	}
	return false
}

// Label returns the stable string key for a policy, used for display lookups
// and as the field-name prefix of per-policy counts and averages.
func (p GradingPolicy) Label() string {
	switch p {
	case GradeFirstAttempt:
		return "firstattempts"
	case GradeHighestAttempt:
		return "highestattempts"
	case GradeLastAttempt:
		return "lastattempts"
	case GradeAverageAttempt:
		return "allattempts"
	}
	return ""
}

// QuizAttempt is one attempt row. Only finished, non-preview attempts feed
// the statistics calculator.
type QuizAttempt struct {
	ID            uint         `json:"id" gorm:"primaryKey"`
	QuizID        uint         `json:"quiz_id" gorm:"not null;index:idx_attempts_quiz_student"`
	StudentID     uint         `json:"student_id" gorm:"not null;index:idx_attempts_quiz_student"`
	GroupID       uint         `json:"group_id" gorm:"index"`
	AttemptNumber int          `json:"attempt_number" gorm:"not null"`
	State         AttemptState `json:"state" gorm:"not null;index;size:20"`
	IsPreview     bool         `json:"is_preview" gorm:"not null;default:false"`
	SumGrades     float64      `json:"sum_grades"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
