package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openlms/quiz-statistics-service/internal/models"
	"github.com/openlms/quiz-statistics-service/internal/repositories"
	"github.com/openlms/quiz-statistics-service/internal/services"
	"github.com/openlms/quiz-statistics-service/internal/utils"
)

type StatisticsHandler struct {
	BaseHandler
	statsService services.StatisticsService
	scores       repositories.ScoreProvider
	validator    *utils.Validator
}

// CalculateStatisticsRequest is the body of a calculation request.
type CalculateStatisticsRequest struct {
	GradingPolicy         string  `json:"grading_policy" validate:"required,grading_policy"`
	GroupID               uint    `json:"group_id"`
	ItemCount             int     `json:"item_count" validate:"min=0"`
	SumOfItemMarkVariance float64 `json:"sum_of_item_mark_variance" validate:"min=0"`

	// Recalculate skips the cache lookup and forces a fresh computation.
	Recalculate bool `json:"recalculate"`
}

// LastCalculatedResponse carries only the computation timestamp.
type LastCalculatedResponse struct {
	Fingerprint      string    `json:"fingerprint"`
	LastCalculatedAt time.Time `json:"last_calculated_at"`
}

// GradingPolicyInfo pairs a policy with its display label key.
type GradingPolicyInfo struct {
	Policy models.GradingPolicy `json:"policy"`
	Label  string               `json:"label"`
}

func NewStatisticsHandler(
	statsService services.StatisticsService,
	scores repositories.ScoreProvider,
	validator *utils.Validator,
	logger utils.Logger,
) *StatisticsHandler {
	return &StatisticsHandler{
		BaseHandler:  NewBaseHandler(logger),
		statsService: statsService,
		scores:       scores,
		validator:    validator,
	}
}

// CalculateStatistics computes statistics for a quiz, cohort and grading
// policy. A fresh cached record is returned as-is unless the request forces
// recalculation.
// @Summary Calculate quiz statistics
// @Tags statistics
// @Accept json
// @Produce json
// @Param id path uint true "Quiz ID"
// @Param request body CalculateStatisticsRequest true "Calculation parameters"
// @Success 200 {object} models.CalculatedStatistics
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /quizzes/{id}/statistics [post]
func (h *StatisticsHandler) CalculateStatistics(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}

	var req CalculateStatisticsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Calculating quiz statistics",
		"quiz_id", quizID,
		"grading_policy", req.GradingPolicy,
		"group_id", req.GroupID)

	policy := models.GradingPolicy(req.GradingPolicy)
	cohort := repositories.Cohort{GroupID: req.GroupID}

	if !req.Recalculate {
		fingerprint := h.scores.Fingerprint(quizID, cohort, policy)
		cached, err := h.statsService.GetCached(c.Request.Context(), fingerprint)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		if cached != nil {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	stats, err := h.statsService.Calculate(c.Request.Context(), services.CalculateRequest{
		QuizID:                quizID,
		GradingPolicy:         policy,
		Cohort:                cohort,
		ItemCount:             req.ItemCount,
		SumOfItemMarkVariance: req.SumOfItemMarkVariance,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetCachedStatistics returns the cached record for a fingerprint.
// @Summary Get cached statistics
// @Tags statistics
// @Produce json
// @Param fingerprint path string true "Attempt-set fingerprint"
// @Success 200 {object} models.CalculatedStatistics
// @Failure 404 {object} ErrorResponse
// @Router /statistics/{fingerprint} [get]
func (h *StatisticsHandler) GetCachedStatistics(c *gin.Context) {
	fingerprint := c.Param("fingerprint")

	stats, err := h.statsService.GetCached(c.Request.Context(), fingerprint)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if stats == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Statistics not cached",
			Code:    "not_cached",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetLastCalculatedTime returns only the computation timestamp for a
// fingerprint, for callers that display "last computed at" without
// materializing the record.
// @Summary Get last calculation time
// @Tags statistics
// @Produce json
// @Param fingerprint path string true "Attempt-set fingerprint"
// @Success 200 {object} LastCalculatedResponse
// @Failure 404 {object} ErrorResponse
// @Router /statistics/{fingerprint}/last-calculated [get]
func (h *StatisticsHandler) GetLastCalculatedTime(c *gin.Context) {
	fingerprint := c.Param("fingerprint")

	lastCalculated, err := h.statsService.GetLastCalculatedTime(c.Request.Context(), fingerprint)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if lastCalculated == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Statistics not cached",
			Code:    "not_cached",
		})
		return
	}

	c.JSON(http.StatusOK, LastCalculatedResponse{
		Fingerprint:      fingerprint,
		LastCalculatedAt: *lastCalculated,
	})
}

// ListGradingPolicies returns the grading policies with their display label
// keys.
// @Summary List grading policies
// @Tags statistics
// @Produce json
// @Success 200 {object} SuccessResponse{data=[]GradingPolicyInfo}
// @Router /grading-policies [get]
func (h *StatisticsHandler) ListGradingPolicies(c *gin.Context) {
	policies := make([]GradingPolicyInfo, 0, len(models.GradingPolicies))
	for _, policy := range models.GradingPolicies {
		policies = append(policies, GradingPolicyInfo{
			Policy: policy,
			Label:  policy.Label(),
		})
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Grading policies",
		Data:    policies,
	})
}

func (h *StatisticsHandler) parseIDParam(c *gin.Context, param string) uint {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "must be a positive integer",
		})
		return 0
	}
	return uint(id)
}
