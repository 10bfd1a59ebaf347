package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// PolicyAggregate is the attempt count and grade average under one grading
// policy. Average is nil when no attempt qualifies.
type PolicyAggregate struct {
	Count   int      `json:"count"`
	Average *float64 `json:"average,omitempty"`
}

// PolicyBreakdown maps every grading policy to its aggregate. All four
// entries are populated on every calculation, regardless of which policy was
// requested, since they describe the same underlying attempt pool.
type PolicyBreakdown map[GradingPolicy]PolicyAggregate

// CalculatedStatistics is the result of one statistics calculation and the
// record cached under its fingerprint.
//
// Pointer fields are nil when the statistic is undefined for the sample that
// produced the record (too few attempts, zero variance). Nil means "not
// applicable", never zero.
type CalculatedStatistics struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	Fingerprint string `json:"fingerprint" gorm:"not null;size:32;index"`
	QuizID      uint   `json:"quiz_id" gorm:"not null;index"`

	// GradingPolicy is empty on a freshly constructed record and set once
	// the record is populated.
	GradingPolicy GradingPolicy `json:"grading_policy" gorm:"size:20"`

	// Breakdown holds a PolicyBreakdown as JSON.
	Breakdown datatypes.JSON `json:"breakdown" gorm:"type:jsonb"`

	// SampleCount is the attempt count under the requested policy.
	SampleCount int `json:"sample_count"`

	Average           *float64 `json:"average,omitempty"`
	Median            *float64 `json:"median,omitempty"`
	StandardDeviation *float64 `json:"standard_deviation,omitempty"`
	Skewness          *float64 `json:"skewness,omitempty"`
	Kurtosis          *float64 `json:"kurtosis,omitempty"`
	ConsistencyIndex  *float64 `json:"consistency_index,omitempty"`
	ErrorRatio        *float64 `json:"error_ratio,omitempty"`
	StandardError     *float64 `json:"standard_error,omitempty"`

	// ErrorRatioOutOfDomain marks the pathological case where the
	// consistency index exceeded 100 and the error ratio formula would take
	// the square root of a negative number. ErrorRatio and StandardError
	// stay nil and callers can report the condition instead of rendering
	// a non-real value.
	ErrorRatioOutOfDomain bool `json:"error_ratio_out_of_domain"`

	ComputedAt time.Time `json:"computed_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// SetBreakdown stores the per-policy aggregates on the record.
func (cs *CalculatedStatistics) SetBreakdown(b PolicyBreakdown) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	cs.Breakdown = datatypes.JSON(data)
	return nil
}

// GetBreakdown decodes the per-policy aggregates stored on the record.
func (cs *CalculatedStatistics) GetBreakdown() (PolicyBreakdown, error) {
	if len(cs.Breakdown) == 0 {
		return PolicyBreakdown{}, nil
	}
	var b PolicyBreakdown
	if err := json.Unmarshal(cs.Breakdown, &b); err != nil {
		return nil, err
	}
	return b, nil
}

// FreshAt reports whether the record is still valid at the given time for
// the given freshness window.
func (cs *CalculatedStatistics) FreshAt(now time.Time, window time.Duration) bool {
	return now.Sub(cs.ComputedAt) < window
}
