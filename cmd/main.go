package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/shenikar/rescue_dispatch_system/internal/ai"
	"github.com/shenikar/rescue_dispatch_system/internal/config"
	"github.com/shenikar/rescue_dispatch_system/internal/dispatch"
	v1 "github.com/shenikar/rescue_dispatch_system/internal/handler/http/v1"
	"github.com/shenikar/rescue_dispatch_system/internal/ml"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/shenikar/rescue_dispatch_system/internal/repository"
	"github.com/shenikar/rescue_dispatch_system/internal/service"
	"github.com/shenikar/rescue_dispatch_system/internal/triage"
	"github.com/shenikar/rescue_dispatch_system/internal/webhook"
	"github.com/shenikar/rescue_dispatch_system/pkg/logger"
	"github.com/shenikar/rescue_dispatch_system/pkg/postgres"
	redisclient "github.com/shenikar/rescue_dispatch_system/pkg/redis"
	"github.com/sirupsen/logrus"

	_ "github.com/shenikar/rescue_dispatch_system/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Rescue Dispatch System API
// @version 1.0
// @description Incident triage and rescue team dispatch API server.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @securityDefinitions.apikey TeamAuth
// @in header
// @name Authorization
func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
	}

	m, err := migrate.New(
		"file://migrations",
		migrationURL,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

// loadModels загружает обученные модели; отсутствующий артефакт заменяется вариантом "без мнения"
func loadModels(cfg *config.Config, log *logrus.Logger) (triage.SeverityClassifier, dispatch.AssignmentModel) {
	var classifier triage.SeverityClassifier = triage.NoOpinion{}
	severityModel, err := ml.LoadSeverityModel(cfg.SeverityModelPath)
	switch {
	case err != nil:
		log.WithError(err).Warn("Failed to load severity model, classifier disabled")
	case severityModel != nil:
		classifier = severityModel
		log.WithField("path", cfg.SeverityModelPath).Info("Severity model loaded")
	}

	var assignment dispatch.AssignmentModel = dispatch.NoModel{}
	assignmentModel, err := ml.LoadAssignmentModel(cfg.AssignmentModelPath)
	switch {
	case err != nil:
		log.WithError(err).Warn("Failed to load assignment model, linear scoring only")
	case assignmentModel != nil:
		assignment = assignmentModel
		log.WithField("path", cfg.AssignmentModelPath).Info("Assignment model loaded")
	}
	return classifier, assignment
}

func dispatchConfig(cfg *config.Config) dispatch.Config {
	dc := dispatch.DefaultConfig()
	dc.Weights = models.Weights{
		Severity: cfg.WeightSeverity,
		Distance: cfg.WeightDistance,
		Load:     cfg.WeightLoad,
	}
	dc.DistanceScaleKm = cfg.DistanceScaleKm
	dc.LoadScale = cfg.LoadScale
	dc.DistanceCapKm = cfg.DistanceCapKm
	dc.TeamCapacity = cfg.TeamCapacity
	return dc
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	log := logger.New(cfg.LogLevel)
	logger.WithService(log).WithField("port", cfg.HTTPPort).Info("Starting rescue dispatch service")

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := runMigrations(cfg, log); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	dbpool, err := postgres.NewPostgresDB(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer dbpool.Close()
	log.Info("Successfully connected to PostgreSQL")

	redisClient, err := redisclient.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Info("Successfully connected to Redis")

	// Вебхуки о новых выездах
	webhookPublisher := webhook.NewRedisWebhookPublisher(redisClient)
	webhookWorker := webhook.NewWebhookWorker(redisClient, log, webhook.DeliveryConfig{
		URL:        cfg.WebhookURL,
		Secret:     cfg.WebhookSecret,
		Timeout:    cfg.WebhookTimeout,
		MaxRetries: cfg.WebhookMaxRetries,
		BaseDelay:  cfg.WebhookBaseDelay,
	})
	webhookWorker.Start(ctx)

	// Репозитории
	incidentRepo := repository.NewIncidentRepository(dbpool, redisClient, cfg.IncidentCacheTTL)
	teamRepo := repository.NewTeamRepository(dbpool)
	dispatchRepo := repository.NewDispatchRepository(dbpool)
	sessionStore := repository.NewSessionStore(redisClient)

	// Внешний генеративный сервис и обученные модели
	aiClient := ai.NewClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, cfg.AITimeout, log)
	if cfg.AIAPIKey == "" {
		log.Warn("AI_API_KEY is not set, triage will use degraded analysis and fallback plans")
	}
	classifier, assignmentModel := loadModels(cfg, log)

	pipeline := triage.NewPipeline(aiClient, classifier, triage.Thresholds{
		Critical:              cfg.SeverityCriticalThreshold,
		High:                  cfg.SeverityHighThreshold,
		Medium:                cfg.SeverityMediumThreshold,
		OriginalUrgencyWeight: cfg.UrgencyOriginalWeight,
		ScoreUrgencyWeight:    cfg.UrgencyScoreWeight,
	}, cfg.AITimeout, log)

	// Сервисы
	incidentService := service.NewIncidentService(incidentRepo, pipeline, aiClient, log, cfg)
	teamService := service.NewTeamService(teamRepo, dispatchRepo, incidentRepo, incidentService, sessionStore, log, cfg)
	dispatchService := service.NewDispatchService(
		incidentRepo, teamRepo, dispatchRepo,
		aiClient, assignmentModel, webhookPublisher, log,
		dispatchConfig(cfg), cfg.StaleDispatchTTL, cfg.AITimeout,
	)

	handler := v1.NewHandler(incidentService, teamService, dispatchService, log, cfg)

	router := gin.Default()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}()
	log.Infof("HTTP server started on port %s", cfg.HTTPPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server gracefully stopped")
}
