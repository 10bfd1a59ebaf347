package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openlms/quiz-statistics-service/internal/models"
	"github.com/openlms/quiz-statistics-service/internal/utils"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "quizstats:"

type redisCache struct {
	client *redis.Client
	logger utils.Logger
}

// NewRedisCache returns a StatisticsCache backed by Redis. Records are stored
// as JSON under the fingerprint with TimeToCache as the native TTL.
func NewRedisCache(client *redis.Client, logger utils.Logger) StatisticsCache {
	return &redisCache{
		client: client,
		logger: logger,
	}
}

func (r *redisCache) Put(ctx context.Context, stats *models.CalculatedStatistics) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal statistics record: %w", err)
	}

	if err := r.client.Set(ctx, redisKeyPrefix+stats.Fingerprint, payload, TimeToCache).Err(); err != nil {
		return fmt.Errorf("failed to cache statistics record: %w", err)
	}

	r.logger.Debug("Cached statistics record",
		"fingerprint", stats.Fingerprint,
		"sample_count", stats.SampleCount)
	return nil
}

func (r *redisCache) Get(ctx context.Context, fingerprint string) (*models.CalculatedStatistics, error) {
	payload, err := r.client.Get(ctx, redisKeyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read statistics record: %w", err)
	}

	var stats models.CalculatedStatistics
	if err := json.Unmarshal(payload, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal statistics record: %w", err)
	}

	// The TTL already bounds the record's lifetime; the explicit check keeps
	// the freshness boundary exact even if the key outlives it.
	if !stats.FreshAt(time.Now(), TimeToCache) {
		return nil, nil
	}

	return &stats, nil
}

func (r *redisCache) LastCalculatedAt(ctx context.Context, fingerprint string) (*time.Time, error) {
	stats, err := r.Get(ctx, fingerprint)
	if err != nil || stats == nil {
		return nil, err
	}
	computedAt := stats.ComputedAt
	return &computedAt, nil
}
