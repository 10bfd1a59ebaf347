package services

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"testing"

	"github.com/openlms/quiz-statistics-service/internal/cache"
	"github.com/openlms/quiz-statistics-service/internal/events"
	"github.com/openlms/quiz-statistics-service/internal/models"
	"github.com/openlms/quiz-statistics-service/internal/repositories"
	"github.com/openlms/quiz-statistics-service/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubScoreProvider serves a fixed score set per grading policy and derives
// counts, averages and moments from it, so tests stay self-consistent.
type stubScoreProvider struct {
	scores     map[models.GradingPolicy][]float64
	failCounts bool
}

func newStubProvider(requested models.GradingPolicy, scores []float64) *stubScoreProvider {
	byPolicy := make(map[models.GradingPolicy][]float64)
	for _, policy := range models.GradingPolicies {
		byPolicy[policy] = nil
	}
	byPolicy[requested] = scores
	return &stubScoreProvider{scores: byPolicy}
}

func (p *stubScoreProvider) CountAndAverage(_ context.Context, _ uint, _ repositories.Cohort, policy models.GradingPolicy) (repositories.Aggregate, error) {
	if p.failCounts {
		return repositories.Aggregate{}, errors.New("attempt store unavailable")
	}
	set := p.scores[policy]
	agg := repositories.Aggregate{Count: len(set)}
	if len(set) > 0 {
		sum := 0.0
		for _, score := range set {
			sum += score
		}
		avg := sum / float64(len(set))
		agg.Average = &avg
	}
	return agg, nil
}

func (p *stubScoreProvider) OrderedScores(_ context.Context, _ uint, _ repositories.Cohort, policy models.GradingPolicy) ([]repositories.AttemptScore, error) {
	set := p.scores[policy]
	scores := make([]repositories.AttemptScore, len(set))
	for i, score := range set {
		scores[i] = repositories.AttemptScore{AttemptID: uint(i + 1), Score: score}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score < scores[j].Score
		}
		return scores[i].AttemptID < scores[j].AttemptID
	})
	return scores, nil
}

func (p *stubScoreProvider) CentralMoments(_ context.Context, _ uint, _ repositories.Cohort, policy models.GradingPolicy, mean float64) (repositories.Moments, error) {
	var moments repositories.Moments
	for _, score := range p.scores[policy] {
		diff := score - mean
		moments.Power2 += diff * diff
		moments.Power3 += diff * diff * diff
		moments.Power4 += diff * diff * diff * diff
	}
	return moments, nil
}

func (p *stubScoreProvider) Fingerprint(quizID uint, cohort repositories.Cohort, policy models.GradingPolicy) string {
	condition := fmt.Sprintf("quiz=%d;group=%d;policy=%s", quizID, cohort.GroupID, policy)
	return fmt.Sprintf("%x", md5.Sum([]byte(condition)))
}

// recordingProgress captures the checkpoints the calculator reports.
type recordingProgress struct {
	stages []Stage
}

func (r *recordingProgress) StageComplete(stage Stage) {
	r.stages = append(r.stages, stage)
}

func newTestService(provider repositories.ScoreProvider) (StatisticsService, cache.StatisticsCache, *events.MockEventPublisher) {
	logger := utils.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	statsCache := cache.NewMemoryCache()
	publisher := events.NewMockEventPublisher(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	service := NewStatisticsService(provider, statsCache, publisher, logger, utils.NewValidator())
	return service, statsCache, publisher
}

func calcRequest(policy models.GradingPolicy) CalculateRequest {
	return CalculateRequest{
		QuizID:        7,
		GradingPolicy: policy,
	}
}

func TestCalculate_MedianOddCount(t *testing.T) {
	provider := newStubProvider(models.GradeHighestAttempt, []float64{5, 6, 7, 8, 9})
	service, _, _ := newTestService(provider)

	stats, err := service.Calculate(context.Background(), calcRequest(models.GradeHighestAttempt))
	require.NoError(t, err)

	assert.Equal(t, 5, stats.SampleCount)
	require.NotNil(t, stats.Median)
	assert.Equal(t, 7.0, *stats.Median)
	require.NotNil(t, stats.Average)
	assert.Equal(t, 7.0, *stats.Average)

	// power2 = 10 over 5 samples
	require.NotNil(t, stats.StandardDeviation)
	assert.InDelta(t, 1.5811, *stats.StandardDeviation, 1e-4)

	// symmetric sample
	require.NotNil(t, stats.Skewness)
	assert.InDelta(t, 0.0, *stats.Skewness, 1e-12)

	require.NotNil(t, stats.Kurtosis)
	assert.InDelta(t, -1.2, *stats.Kurtosis, 1e-12)
}

func TestCalculate_MedianEvenCount(t *testing.T) {
	provider := newStubProvider(models.GradeFirstAttempt, []float64{2, 4, 6, 8})
	service, _, _ := newTestService(provider)

	stats, err := service.Calculate(context.Background(), calcRequest(models.GradeFirstAttempt))
	require.NoError(t, err)

	require.NotNil(t, stats.Median)
	assert.Equal(t, 5.0, *stats.Median)
}

func TestCalculate_SingleAttempt(t *testing.T) {
	provider := newStubProvider(models.GradeLastAttempt, []float64{10})
	service, _, _ := newTestService(provider)

	stats, err := service.Calculate(context.Background(), calcRequest(models.GradeLastAttempt))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.SampleCount)
	require.NotNil(t, stats.Median)
	assert.Equal(t, 10.0, *stats.Median)
	assert.Nil(t, stats.StandardDeviation)
	assert.Nil(t, stats.Skewness)
	assert.Nil(t, stats.Kurtosis)
}

func TestCalculate_NoAttempts(t *testing.T) {
	provider := newStubProvider(models.GradeAverageAttempt, nil)
	service, _, _ := newTestService(provider)

	stats, err := service.Calculate(context.Background(), calcRequest(models.GradeAverageAttempt))
	require.NoError(t, err)

	assert.Equal(t, 0, stats.SampleCount)
	assert.Nil(t, stats.Average)
	assert.Nil(t, stats.Median)
	assert.Nil(t, stats.StandardDeviation)

	// The per-policy breakdown is populated even with no attempts.
	breakdown, err := stats.GetBreakdown()
	require.NoError(t, err)
	assert.Len(t, breakdown, len(models.GradingPolicies))
	for _, policy := range models.GradingPolicies {
		agg, ok := breakdown[policy]
		require.True(t, ok, "missing aggregate for policy %s", policy)
		assert.Equal(t, 0, agg.Count)
		assert.Nil(t, agg.Average)
	}
}

func TestCalculate_ZeroVariance(t *testing.T) {
	provider := newStubProvider(models.GradeHighestAttempt, []float64{5, 5, 5, 5})
	service, _, _ := newTestService(provider)

	req := calcRequest(models.GradeHighestAttempt)
	req.ItemCount = 10
	stats, err := service.Calculate(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, stats.StandardDeviation)
	assert.Equal(t, 0.0, *stats.StandardDeviation)
	assert.Nil(t, stats.Skewness)
	assert.Nil(t, stats.Kurtosis)
	assert.Nil(t, stats.ConsistencyIndex)
}

func TestCalculate_TwoSamples(t *testing.T) {
	provider := newStubProvider(models.GradeHighestAttempt, []float64{4, 8})
	service, _, _ := newTestService(provider)

	stats, err := service.Calculate(context.Background(), calcRequest(models.GradeHighestAttempt))
	require.NoError(t, err)

	require.NotNil(t, stats.StandardDeviation)
	assert.InDelta(t, 2.8284, *stats.StandardDeviation, 1e-4)
	assert.Nil(t, stats.Skewness)
}

func TestCalculate_ThreeSamples(t *testing.T) {
	provider := newStubProvider(models.GradeHighestAttempt, []float64{2, 4, 9})
	service, _, _ := newTestService(provider)

	stats, err := service.Calculate(context.Background(), calcRequest(models.GradeHighestAttempt))
	require.NoError(t, err)

	require.NotNil(t, stats.Skewness)
	assert.Nil(t, stats.Kurtosis)
}

func TestCalculate_ConsistencyIndex(t *testing.T) {
	provider := newStubProvider(models.GradeHighestAttempt, []float64{3, 5, 6, 8, 13})
	service, _, _ := newTestService(provider)

	req := calcRequest(models.GradeHighestAttempt)
	req.ItemCount = 10
	req.SumOfItemMarkVariance = 4.0
	stats, err := service.Calculate(context.Background(), req)
	require.NoError(t, err)

	// power2 = 58, s = 5: m2 = 11.6, k2 = 14.5
	// ci = 100 * 10/9 * (1 - 4/14.5)
	require.NotNil(t, stats.ConsistencyIndex)
	assert.InDelta(t, 80.4598, *stats.ConsistencyIndex, 1e-4)
	assert.False(t, stats.ErrorRatioOutOfDomain)

	require.NotNil(t, stats.ErrorRatio)
	assert.InDelta(t, 44.2043, *stats.ErrorRatio, 1e-4)

	require.NotNil(t, stats.StandardError)
	require.NotNil(t, stats.StandardDeviation)
	assert.InDelta(t, *stats.ErrorRatio**stats.StandardDeviation/100, *stats.StandardError, 1e-12)
}

func TestCalculate_ConsistencyIndexOutOfDomain(t *testing.T) {
	provider := newStubProvider(models.GradeHighestAttempt, []float64{3, 5, 6, 8, 13})
	service, _, _ := newTestService(provider)

	// Zero item-mark variance pushes the index above 100.
	req := calcRequest(models.GradeHighestAttempt)
	req.ItemCount = 10
	req.SumOfItemMarkVariance = 0
	stats, err := service.Calculate(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, stats.ConsistencyIndex)
	assert.Greater(t, *stats.ConsistencyIndex, 100.0)
	assert.True(t, stats.ErrorRatioOutOfDomain)
	assert.Nil(t, stats.ErrorRatio)
	assert.Nil(t, stats.StandardError)
	require.NotNil(t, stats.Kurtosis)
}

func TestCalculate_MonotonicGating(t *testing.T) {
	sets := [][]float64{
		{},
		{5},
		{4, 8},
		{2, 4, 9},
		{5, 6, 7, 8, 9},
	}

	for _, set := range sets {
		provider := newStubProvider(models.GradeHighestAttempt, set)
		service, _, _ := newTestService(provider)

		req := calcRequest(models.GradeHighestAttempt)
		req.ItemCount = 10
		req.SumOfItemMarkVariance = 1.0
		stats, err := service.Calculate(context.Background(), req)
		require.NoError(t, err)

		if stats.Skewness != nil {
			assert.NotNil(t, stats.StandardDeviation, "skewness defined without standard deviation for %v", set)
		}
		if stats.Kurtosis != nil {
			assert.NotNil(t, stats.Skewness, "kurtosis defined without skewness for %v", set)
		}
		if stats.ConsistencyIndex != nil {
			assert.NotNil(t, stats.Kurtosis, "consistency index defined without kurtosis for %v", set)
		}
		if stats.StandardDeviation != nil {
			assert.GreaterOrEqual(t, *stats.StandardDeviation, 0.0)
		}
	}
}

func TestCalculate_Idempotent(t *testing.T) {
	provider := newStubProvider(models.GradeHighestAttempt, []float64{3, 5, 6, 8, 13})
	service, _, _ := newTestService(provider)

	req := calcRequest(models.GradeHighestAttempt)
	req.ItemCount = 10
	req.SumOfItemMarkVariance = 4.0

	first, err := service.Calculate(context.Background(), req)
	require.NoError(t, err)
	second, err := service.Calculate(context.Background(), req)
	require.NoError(t, err)

	first.ComputedAt = second.ComputedAt
	assert.Equal(t, first, second)
}

func TestCalculate_UnknownGradingPolicy(t *testing.T) {
	provider := newStubProvider(models.GradeHighestAttempt, []float64{5})
	service, _, _ := newTestService(provider)

	_, err := service.Calculate(context.Background(), calcRequest("median"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownGradingPolicy)
	assert.True(t, IsBadInput(err))
}

func TestCalculate_ProviderFailurePropagatesUncached(t *testing.T) {
	provider := newStubProvider(models.GradeHighestAttempt, []float64{5, 6, 7})
	provider.failCounts = true
	service, statsCache, publisher := newTestService(provider)

	req := calcRequest(models.GradeHighestAttempt)
	_, err := service.Calculate(context.Background(), req)
	require.Error(t, err)

	fingerprint := provider.Fingerprint(req.QuizID, req.Cohort, req.GradingPolicy)
	cached, cacheErr := statsCache.Get(context.Background(), fingerprint)
	require.NoError(t, cacheErr)
	assert.Nil(t, cached, "failed calculation must not write to the cache")
	assert.Empty(t, publisher.GetPublishedEvents())
}

func TestCalculate_CachedRoundTrip(t *testing.T) {
	provider := newStubProvider(models.GradeHighestAttempt, []float64{5, 6, 7, 8, 9})
	service, _, _ := newTestService(provider)
	ctx := context.Background()

	req := calcRequest(models.GradeHighestAttempt)
	stats, err := service.Calculate(ctx, req)
	require.NoError(t, err)

	cached, err := service.GetCached(ctx, stats.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, stats.SampleCount, cached.SampleCount)
	assert.Equal(t, stats.Median, cached.Median)

	lastCalculated, err := service.GetLastCalculatedTime(ctx, stats.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, lastCalculated)
	assert.True(t, lastCalculated.Equal(stats.ComputedAt))

	// An unknown fingerprint is absent, not an error.
	missing, err := service.GetCached(ctx, "0000000000000000000000000000dead")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCalculate_PublishesEvent(t *testing.T) {
	provider := newStubProvider(models.GradeLastAttempt, []float64{2, 4, 6, 8})
	service, _, publisher := newTestService(provider)

	stats, err := service.Calculate(context.Background(), calcRequest(models.GradeLastAttempt))
	require.NoError(t, err)

	published := publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	event := published[0]
	assert.Equal(t, events.EventStatisticsCalculated, event.Type)
	assert.NotEmpty(t, event.ID)

	data, ok := event.Data.(events.StatisticsCalculatedEvent)
	require.True(t, ok)
	assert.Equal(t, stats.Fingerprint, data.Fingerprint)
	assert.Equal(t, 4, data.SampleCount)
	assert.Equal(t, models.GradeLastAttempt, data.GradingPolicy)
}

func TestCalculate_ProgressCheckpoints(t *testing.T) {
	cases := []struct {
		name   string
		scores []float64
		want   []Stage
	}{
		{"no attempts", nil, []Stage{StageCounts}},
		{"single attempt", []float64{10}, []Stage{StageCounts, StageMedian}},
		{"full calculation", []float64{5, 6, 7, 8, 9}, []Stage{StageCounts, StageMedian, StageMoments}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := newStubProvider(models.GradeHighestAttempt, tc.scores)
			service, _, _ := newTestService(provider)

			progress := &recordingProgress{}
			req := calcRequest(models.GradeHighestAttempt)
			req.Progress = progress

			_, err := service.Calculate(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, progress.stages)
		})
	}
}
