package services

// Stage identifies a completed checkpoint inside a statistics calculation.
type Stage int

const (
	StageCounts Stage = iota + 1 // per-policy counts and averages done
	StageMedian                  // median done
	StageMoments                 // central moments and derived statistics done

	// TotalStages is the number of checkpoints a full calculation reports.
	TotalStages = 3
)

func (s Stage) String() string {
	switch s {
	case StageCounts:
		return "counts"
	case StageMedian:
		return "median"
	case StageMoments:
		return "moments"
	}
	return "unknown"
}

// Progress receives stage-completion notifications during a calculation.
// Implementations must be cheap; the calculator calls them inline.
type Progress interface {
	StageComplete(stage Stage)
}

// NopProgress is the default observer; it ignores all notifications.
type NopProgress struct{}

func (NopProgress) StageComplete(Stage) {}
