package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openlms/quiz-statistics-service/internal/repositories"
	"github.com/openlms/quiz-statistics-service/internal/services"
	"github.com/openlms/quiz-statistics-service/internal/utils"
)

type HandlerManager struct {
	statisticsHandler *StatisticsHandler
}

func NewHandlerManager(
	statsService services.StatisticsService,
	scores repositories.ScoreProvider,
	validator *utils.Validator,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		statisticsHandler: NewStatisticsHandler(statsService, scores, validator, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// Health check endpoint
	router.GET("/health", HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		quizzes := v1.Group("/quizzes")
		{
			quizzes.POST("/:id/statistics", hm.statisticsHandler.CalculateStatistics)
		}

		statistics := v1.Group("/statistics")
		{
			statistics.GET("/:fingerprint", hm.statisticsHandler.GetCachedStatistics)
			statistics.GET("/:fingerprint/last-calculated", hm.statisticsHandler.GetLastCalculatedTime)
		}

		v1.GET("/grading-policies", hm.statisticsHandler.ListGradingPolicies)
	}
}

// HealthCheck reports service liveness
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "quiz-statistics-service",
	})
}
