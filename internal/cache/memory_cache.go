package cache

import (
	"context"
	"sync"
	"time"

	"github.com/openlms/quiz-statistics-service/internal/models"
)

// memoryCache is an in-process StatisticsCache for tests and single-node
// deployments. Expiry is checked on read against the record's ComputedAt.
type memoryCache struct {
	mu      sync.RWMutex
	records map[string]models.CalculatedStatistics
	now     func() time.Time
}

func NewMemoryCache() StatisticsCache {
	return &memoryCache{
		records: make(map[string]models.CalculatedStatistics),
		now:     time.Now,
	}
}

func (m *memoryCache) Put(_ context.Context, stats *models.CalculatedStatistics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[stats.Fingerprint] = *stats
	return nil
}

func (m *memoryCache) Get(_ context.Context, fingerprint string) (*models.CalculatedStatistics, error) {
	m.mu.RLock()
	stats, ok := m.records[fingerprint]
	m.mu.RUnlock()

	if !ok || !stats.FreshAt(m.now(), TimeToCache) {
		return nil, nil
	}
	return &stats, nil
}

func (m *memoryCache) LastCalculatedAt(ctx context.Context, fingerprint string) (*time.Time, error) {
	stats, err := m.Get(ctx, fingerprint)
	if err != nil || stats == nil {
		return nil, err
	}
	computedAt := stats.ComputedAt
	return &computedAt, nil
}
