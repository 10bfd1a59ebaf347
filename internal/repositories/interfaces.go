package repositories

import (
	"context"

	"github.com/openlms/quiz-statistics-service/internal/models"
)

// Cohort filters which participants' attempts are included. The zero value
// means "all participants".
type Cohort struct {
	GroupID uint `json:"group_id"`
}

func (c Cohort) IsAll() bool {
	return c.GroupID == 0
}

// Aggregate is the count and average of attempt grades under one grading
// policy. Average is nil when Count is zero.
type Aggregate struct {
	Count   int      `json:"count"`
	Average *float64 `json:"average,omitempty"`
}

// AttemptScore is one grade in an attempt score set. AttemptID is the stable
// tiebreak key for equal scores.
type AttemptScore struct {
	AttemptID uint    `json:"attempt_id"`
	Score     float64 `json:"score"`
}

// Moments are the second, third and fourth central moments of a score set
// about a given mean: Σ(x-mean)², Σ(x-mean)³, Σ(x-mean)⁴.
type Moments struct {
	Power2 float64 `json:"power2"`
	Power3 float64 `json:"power3"`
	Power4 float64 `json:"power4"`
}

// ScoreProvider yields the finished, non-preview attempt scores of one quiz,
// cohort and grading-policy combination, plus a stable fingerprint for that
// exact set. The statistics calculator consumes nothing else.
type ScoreProvider interface {
	// CountAndAverage returns the score count and mean under the policy.
	CountAndAverage(ctx context.Context, quizID uint, cohort Cohort, policy models.GradingPolicy) (Aggregate, error)

	// OrderedScores returns the score set ascending by score, ties broken by
	// attempt ID so the ordering is deterministic.
	OrderedScores(ctx context.Context, quizID uint, cohort Cohort, policy models.GradingPolicy) ([]AttemptScore, error)

	// CentralMoments returns Σ(x-mean)^k for k = 2, 3, 4 over the score set.
	CentralMoments(ctx context.Context, quizID uint, cohort Cohort, policy models.GradingPolicy, mean float64) (Moments, error)

	// Fingerprint returns a stable hash identifying the exact attempt-set
	// query. Identical inputs produce identical output; used as the cache key.
	Fingerprint(quizID uint, cohort Cohort, policy models.GradingPolicy) string
}
