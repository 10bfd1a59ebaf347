package events

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/openlms/quiz-statistics-service/internal/models"
)

// EventType represents the statistics events this service publishes
type EventType string

const (
	EventStatisticsCalculated EventType = "quizstats.calculated"
)

const (
	eventSource  = "quiz-statistics-service"
	eventVersion = "1.0"
)

// StatisticsEvent is the envelope for all published statistics events
type StatisticsEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// StatisticsCalculatedEvent is emitted after a calculation completes and its
// record has been cached. Consumers (report layer, audit log) are external.
type StatisticsCalculatedEvent struct {
	Fingerprint   string               `json:"fingerprint"`
	QuizID        uint                 `json:"quiz_id"`
	GradingPolicy models.GradingPolicy `json:"grading_policy"`
	GroupID       uint                 `json:"group_id"`
	SampleCount   int                  `json:"sample_count"`
	DurationMs    int64                `json:"duration_ms"`
	ComputedAt    time.Time            `json:"computed_at"`
}

// NewStatisticsCalculatedEvent wraps a calculation outcome in the event envelope
func NewStatisticsCalculatedEvent(data StatisticsCalculatedEvent) *StatisticsEvent {
	return &StatisticsEvent{
		ID:        watermill.NewUUID(),
		Type:      EventStatisticsCalculated,
		Timestamp: time.Now(),
		Source:    eventSource,
		Version:   eventVersion,
		Data:      data,
	}
}
