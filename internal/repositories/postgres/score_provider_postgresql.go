package postgres

import (
	"context"
	"crypto/md5"
	"fmt"

	"github.com/openlms/quiz-statistics-service/internal/models"
	"github.com/openlms/quiz-statistics-service/internal/repositories"
	"gorm.io/gorm"
)

// ScoreProviderPostgreSQL materializes attempt score sets from the
// quiz_attempts table. Only finished, non-preview attempts are considered,
// and the grading policy picks at most one grade per participant.
type ScoreProviderPostgreSQL struct {
	db *gorm.DB
}

func NewScoreProviderPostgreSQL(db *gorm.DB) repositories.ScoreProvider {
	return &ScoreProviderPostgreSQL{db: db}
}

// gradeSet returns the SQL for the per-participant grade set under a policy,
// as rows of (attempt_id, score), plus its bind arguments.
func (p *ScoreProviderPostgreSQL) gradeSet(quizID uint, cohort repositories.Cohort, policy models.GradingPolicy) (string, []interface{}) {
	where := "quiz_id = ? AND state = ? AND is_preview = FALSE"
	args := []interface{}{quizID, models.AttemptFinished}
	if !cohort.IsAll() {
		where += " AND group_id = ?"
		args = append(args, cohort.GroupID)
	}

	switch policy {
	case models.GradeFirstAttempt:
		return "SELECT DISTINCT ON (student_id) id AS attempt_id, sum_grades AS score FROM quiz_attempts WHERE " +
			where + " ORDER BY student_id, attempt_number ASC, id ASC", args
	case models.GradeLastAttempt:
		return "SELECT DISTINCT ON (student_id) id AS attempt_id, sum_grades AS score FROM quiz_attempts WHERE " +
			where + " ORDER BY student_id, attempt_number DESC, id DESC", args
	case models.GradeHighestAttempt:
		return "SELECT DISTINCT ON (student_id) id AS attempt_id, sum_grades AS score FROM quiz_attempts WHERE " +
			where + " ORDER BY student_id, sum_grades DESC, id ASC", args
	case models.GradeAverageAttempt:
		// One averaged grade per participant; the smallest attempt id of the
		// participant serves as the tiebreak key.
		return "SELECT MIN(id) AS attempt_id, AVG(sum_grades) AS score FROM quiz_attempts WHERE " +
			where + " GROUP BY student_id", args
	}
	return "", nil
}

func (p *ScoreProviderPostgreSQL) CountAndAverage(ctx context.Context, quizID uint, cohort repositories.Cohort, policy models.GradingPolicy) (repositories.Aggregate, error) {
	set, args := p.gradeSet(quizID, cohort, policy)
	if set == "" {
		return repositories.Aggregate{}, fmt.Errorf("unknown grading policy %q", policy)
	}

	var row struct {
		Count   int
		Average *float64
	}
	query := "SELECT COUNT(*) AS count, AVG(score) AS average FROM (" + set + ") grades"
	if err := p.db.WithContext(ctx).Raw(query, args...).Scan(&row).Error; err != nil {
		return repositories.Aggregate{}, fmt.Errorf("failed to count attempt grades: %w", err)
	}

	return repositories.Aggregate{Count: row.Count, Average: row.Average}, nil
}

func (p *ScoreProviderPostgreSQL) OrderedScores(ctx context.Context, quizID uint, cohort repositories.Cohort, policy models.GradingPolicy) ([]repositories.AttemptScore, error) {
	set, args := p.gradeSet(quizID, cohort, policy)
	if set == "" {
		return nil, fmt.Errorf("unknown grading policy %q", policy)
	}

	var scores []repositories.AttemptScore
	query := "SELECT attempt_id, score FROM (" + set + ") grades ORDER BY score ASC, attempt_id ASC"
	if err := p.db.WithContext(ctx).Raw(query, args...).Scan(&scores).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch ordered scores: %w", err)
	}

	return scores, nil
}

func (p *ScoreProviderPostgreSQL) CentralMoments(ctx context.Context, quizID uint, cohort repositories.Cohort, policy models.GradingPolicy, mean float64) (repositories.Moments, error) {
	set, args := p.gradeSet(quizID, cohort, policy)
	if set == "" {
		return repositories.Moments{}, fmt.Errorf("unknown grading policy %q", policy)
	}

	var moments repositories.Moments
	query := `SELECT
		COALESCE(SUM(POWER(score - ?, 2)), 0) AS power2,
		COALESCE(SUM(POWER(score - ?, 3)), 0) AS power3,
		COALESCE(SUM(POWER(score - ?, 4)), 0) AS power4
	FROM (` + set + ") grades"
	queryArgs := append([]interface{}{mean, mean, mean}, args...)
	if err := p.db.WithContext(ctx).Raw(query, queryArgs...).Scan(&moments).Error; err != nil {
		return repositories.Moments{}, fmt.Errorf("failed to compute central moments: %w", err)
	}

	return moments, nil
}

// Fingerprint hashes the canonical attempt-set condition. Two calls with the
// same quiz, cohort and policy always produce the same key.
func (p *ScoreProviderPostgreSQL) Fingerprint(quizID uint, cohort repositories.Cohort, policy models.GradingPolicy) string {
	condition := fmt.Sprintf("quiz=%d;group=%d;policy=%s", quizID, cohort.GroupID, policy)
	return fmt.Sprintf("%x", md5.Sum([]byte(condition)))
}
