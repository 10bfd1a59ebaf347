package cache

import (
	"context"
	"time"

	"github.com/openlms/quiz-statistics-service/internal/models"
)

// TimeToCache is the validity window of a cached statistics record. A record
// older than this is treated as absent.
const TimeToCache = 900 * time.Second

// StatisticsCache stores calculated statistics keyed by the fingerprint of
// the attempt-set query that produced them.
//
// A miss or an expired record is reported as (nil, nil), never as an error.
// Concurrent writers for the same fingerprint are tolerated: results are pure
// functions of the same input data, so last writer wins without locking.
type StatisticsCache interface {
	Put(ctx context.Context, stats *models.CalculatedStatistics) error
	Get(ctx context.Context, fingerprint string) (*models.CalculatedStatistics, error)

	// LastCalculatedAt returns only the computation timestamp, for callers
	// that display "last computed at" without materializing the record.
	LastCalculatedAt(ctx context.Context, fingerprint string) (*time.Time, error)
}
