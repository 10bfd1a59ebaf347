package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/openlms/quiz-statistics-service/internal/cache"
	"github.com/openlms/quiz-statistics-service/internal/events"
	"github.com/openlms/quiz-statistics-service/internal/models"
	"github.com/openlms/quiz-statistics-service/internal/repositories"
	"github.com/openlms/quiz-statistics-service/internal/utils"
)

// StatisticsService computes descriptive statistics over quiz attempt score
// sets and manages the time-expiring cache of results.
type StatisticsService interface {
	// Calculate runs the full calculation for one quiz, cohort and grading
	// policy, caches the result under its fingerprint and returns it.
	Calculate(ctx context.Context, req CalculateRequest) (*models.CalculatedStatistics, error)

	// GetCached returns the cached record for the fingerprint, or nil when
	// the record is expired or was never computed. Callers fall back to
	// Calculate; a miss is not an error.
	GetCached(ctx context.Context, fingerprint string) (*models.CalculatedStatistics, error)

	// GetLastCalculatedTime returns only the computation timestamp under the
	// same freshness window as GetCached.
	GetLastCalculatedTime(ctx context.Context, fingerprint string) (*time.Time, error)
}

// CalculateRequest describes one calculation. ItemCount and
// SumOfItemMarkVariance feed the consistency index and may be zero, which
// only restricts which derived fields become defined.
type CalculateRequest struct {
	QuizID                uint                 `json:"quiz_id" validate:"required"`
	GradingPolicy         models.GradingPolicy `json:"grading_policy" validate:"required,grading_policy"`
	Cohort                repositories.Cohort  `json:"cohort"`
	ItemCount             int                  `json:"item_count" validate:"min=0"`
	SumOfItemMarkVariance float64              `json:"sum_of_item_mark_variance" validate:"min=0"`

	// Progress optionally observes the three calculation checkpoints.
	Progress Progress `json:"-"`
}

type statisticsService struct {
	scores    repositories.ScoreProvider
	cache     cache.StatisticsCache
	publisher events.EventPublisher
	logger    utils.Logger
	validator *utils.Validator
	now       func() time.Time
}

func NewStatisticsService(
	scores repositories.ScoreProvider,
	statsCache cache.StatisticsCache,
	publisher events.EventPublisher,
	logger utils.Logger,
	validator *utils.Validator,
) StatisticsService {
	return &statisticsService{
		scores:    scores,
		cache:     statsCache,
		publisher: publisher,
		logger:    logger,
		validator: validator,
		now:       time.Now,
	}
}

// Calculate is a linear state machine: each step runs only if the previous
// one left enough data, and the first failing precondition terminates the
// calculation with whatever prefix of fields is already populated. The five
// insufficient-data exits (s=0, s<=1, s<=2, k2=0, s<=3) are normal outcomes,
// not errors.
func (s *statisticsService) Calculate(ctx context.Context, req CalculateRequest) (*models.CalculatedStatistics, error) {
	if !req.GradingPolicy.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGradingPolicy, req.GradingPolicy)
	}
	if s.validator != nil {
		if err := s.validator.Validate(&req); err != nil {
			return nil, err
		}
	}

	progress := req.Progress
	if progress == nil {
		progress = NopProgress{}
	}
	start := s.now()

	stats := &models.CalculatedStatistics{
		Fingerprint: s.scores.Fingerprint(req.QuizID, req.Cohort, req.GradingPolicy),
		QuizID:      req.QuizID,
	}

	// Step 1: counts and averages for all four policies. They describe the
	// same attempt pool, so all four are populated regardless of which
	// policy was requested.
	breakdown := models.PolicyBreakdown{}
	for _, policy := range models.GradingPolicies {
		agg, err := s.scores.CountAndAverage(ctx, req.QuizID, req.Cohort, policy)
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate %s grades: %w", policy.Label(), err)
		}
		breakdown[policy] = models.PolicyAggregate(agg)
	}
	if err := stats.SetBreakdown(breakdown); err != nil {
		return nil, fmt.Errorf("failed to encode policy breakdown: %w", err)
	}

	requested := breakdown[req.GradingPolicy]
	stats.GradingPolicy = req.GradingPolicy
	stats.SampleCount = requested.Count
	if requested.Average != nil {
		avg := *requested.Average
		stats.Average = &avg
	}
	progress.StageComplete(StageCounts)

	// Step 2: a quiz with no finished attempts in the cohort.
	if requested.Count == 0 {
		return s.finalize(ctx, req, stats, start)
	}
	if requested.Average == nil {
		return nil, ErrMissingAverage
	}
	n := requested.Count
	avg := *requested.Average

	// Step 3: median over the requested policy's score set.
	scores, err := s.scores.OrderedScores(ctx, req.QuizID, req.Cohort, req.GradingPolicy)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ordered scores: %w", err)
	}
	if len(scores) > 0 {
		median := medianOf(scores)
		stats.Median = &median
	}
	progress.StageComplete(StageMedian)

	// Step 4: standard deviation needs at least two samples.
	if n <= 1 {
		return s.finalize(ctx, req, stats, start)
	}

	// Step 5: central moments about the mean.
	moments, err := s.scores.CentralMoments(ctx, req.QuizID, req.Cohort, req.GradingPolicy, avg)
	if err != nil {
		return nil, fmt.Errorf("failed to compute central moments: %w", err)
	}
	sf := float64(n)
	stdDev := math.Sqrt(moments.Power2 / (sf - 1))
	stats.StandardDeviation = &stdDev
	progress.StageComplete(StageMoments)

	// Step 6: skewness needs at least three samples.
	if n <= 2 {
		return s.finalize(ctx, req, stats, start)
	}

	// Step 7: bias-corrected cumulants.
	m2 := moments.Power2 / sf
	m3 := moments.Power3 / sf
	m4 := moments.Power4 / sf
	k2 := sf * m2 / (sf - 1)
	k3 := sf * sf * m3 / ((sf - 1) * (sf - 2))

	// Zero variance: all remaining statistics are undefined.
	if k2 == 0 {
		return s.finalize(ctx, req, stats, start)
	}
	skewness := k3 / math.Pow(k2, 1.5)
	stats.Skewness = &skewness

	// Step 8: kurtosis needs at least four samples.
	if n <= 3 {
		return s.finalize(ctx, req, stats, start)
	}
	k4 := sf * sf * ((sf+1)*m4 - 3*(sf-1)*m2*m2) / ((sf - 1) * (sf - 2) * (sf - 3))
	kurtosis := k4 / (k2 * k2)
	stats.Kurtosis = &kurtosis

	// Step 9: consistency index, only meaningful with more than one item.
	if req.ItemCount > 1 {
		p := float64(req.ItemCount)
		consistency := 100 * p / (p - 1) * (1 - req.SumOfItemMarkVariance/k2)
		stats.ConsistencyIndex = &consistency

		if consistency > 100 {
			// The error ratio formula would take the square root of a
			// negative number. Leave it and the standard error undefined
			// and mark the record so callers can report the condition.
			stats.ErrorRatioOutOfDomain = true
			s.logger.Warn("Consistency index out of domain",
				"fingerprint", stats.Fingerprint,
				"consistency_index", consistency)
		} else {
			errorRatio := 100 * math.Sqrt(1-consistency/100)
			standardError := errorRatio * stdDev / 100
			stats.ErrorRatio = &errorRatio
			stats.StandardError = &standardError
		}
	}

	return s.finalize(ctx, req, stats, start)
}

// finalize timestamps the record, writes it to the cache and announces the
// calculation. Every terminal state of the calculation passes through here,
// so a cached record is always consistent with the sample that produced it.
func (s *statisticsService) finalize(ctx context.Context, req CalculateRequest, stats *models.CalculatedStatistics, start time.Time) (*models.CalculatedStatistics, error) {
	stats.ComputedAt = s.now()

	if err := s.cache.Put(ctx, stats); err != nil {
		// The result is still valid; a later request recomputes it.
		s.logger.LogError(err, "Failed to cache statistics record", "fingerprint", stats.Fingerprint)
	}

	if s.publisher != nil {
		event := events.NewStatisticsCalculatedEvent(events.StatisticsCalculatedEvent{
			Fingerprint:   stats.Fingerprint,
			QuizID:        stats.QuizID,
			GradingPolicy: stats.GradingPolicy,
			GroupID:       req.Cohort.GroupID,
			SampleCount:   stats.SampleCount,
			DurationMs:    s.now().Sub(start).Milliseconds(),
			ComputedAt:    stats.ComputedAt,
		})
		if err := s.publisher.PublishStatisticsEvent(ctx, event); err != nil {
			s.logger.LogError(err, "Failed to publish statistics event", "fingerprint", stats.Fingerprint)
		}
	}

	s.logger.Info("Calculated quiz statistics",
		"quiz_id", stats.QuizID,
		"grading_policy", stats.GradingPolicy.Label(),
		"fingerprint", stats.Fingerprint,
		"sample_count", stats.SampleCount)

	return stats, nil
}

func (s *statisticsService) GetCached(ctx context.Context, fingerprint string) (*models.CalculatedStatistics, error) {
	return s.cache.Get(ctx, fingerprint)
}

func (s *statisticsService) GetLastCalculatedTime(ctx context.Context, fingerprint string) (*time.Time, error) {
	return s.cache.LastCalculatedAt(ctx, fingerprint)
}

// medianOf expects scores sorted ascending by score with ties broken by
// attempt ID. For an even count it averages the two middle ranks, for an odd
// count it takes the middle rank.
func medianOf(scores []repositories.AttemptScore) float64 {
	n := len(scores)
	if n%2 == 0 {
		lower := scores[n/2-1].Score
		upper := scores[n/2].Score
		return (lower + upper) / 2
	}
	return scores[n/2].Score
}
