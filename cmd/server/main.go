package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openlms/quiz-statistics-service/internal/cache"
	"github.com/openlms/quiz-statistics-service/internal/config"
	"github.com/openlms/quiz-statistics-service/internal/events"
	"github.com/openlms/quiz-statistics-service/internal/handlers"
	"github.com/openlms/quiz-statistics-service/internal/models"
	"github.com/openlms/quiz-statistics-service/internal/repositories/postgres"
	"github.com/openlms/quiz-statistics-service/internal/services"
	"github.com/openlms/quiz-statistics-service/internal/utils"
	"github.com/openlms/quiz-statistics-service/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	var logger utils.Logger
	if cfg.IsProduction() {
		logger = utils.NewDefaultLogger()
		gin.SetMode(gin.ReleaseMode)
	} else {
		logger = utils.NewDevelopmentLogger()
	}

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		logger.LogError(err, "Failed to connect to database")
		os.Exit(1)
	}
	if err := db.AutoMigrate(&models.QuizAttempt{}, &models.CalculatedStatistics{}); err != nil {
		logger.LogError(err, "Failed to run migrations")
		os.Exit(1)
	}

	redisClient, err := pkg.NewRedisClient(cfg)
	if err != nil {
		logger.LogError(err, "Failed to connect to redis")
		os.Exit(1)
	}
	defer redisClient.Close()

	slogLogger := utils.ToSlogLogger(logger)
	publisher, err := events.NewKafkaEventPublisher(events.PublisherConfig{
		KafkaBrokers: cfg.KafkaBrokers,
		TopicName:    cfg.KafkaTopic,
		Logger:       slogLogger,
	})
	if err != nil {
		logger.LogError(err, "Failed to create event publisher")
		os.Exit(1)
	}
	defer publisher.Close()

	validator := utils.NewValidator()
	scoreProvider := postgres.NewScoreProviderPostgreSQL(db)
	statsCache := cache.NewRedisCache(redisClient, logger)
	statsService := services.NewStatisticsService(scoreProvider, statsCache, publisher, logger, validator)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.LoggerMiddleware(logger))

	manager := handlers.NewHandlerManager(statsService, scoreProvider, validator, logger)
	manager.SetupRoutes(router)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Starting quiz statistics service", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError(err, "Server failed")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.LogError(err, "Forced shutdown")
	}
}
