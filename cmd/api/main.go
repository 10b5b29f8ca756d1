package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/brightleads/dmengine/docs" // swagger docs

	"github.com/brightleads/dmengine/internal/config"
	"github.com/brightleads/dmengine/internal/platform/auth"
	httpPlatform "github.com/brightleads/dmengine/internal/platform/http"
	"github.com/brightleads/dmengine/internal/platform/logger"
	"github.com/brightleads/dmengine/internal/platform/mail"
	"github.com/brightleads/dmengine/internal/platform/postgres"
	"github.com/brightleads/dmengine/internal/platform/redis"
	"github.com/brightleads/dmengine/internal/platform/storage"
	"github.com/brightleads/dmengine/internal/platform/telemetry"

	authHandler "github.com/brightleads/dmengine/modules/auth/handler"
	authRepo "github.com/brightleads/dmengine/modules/auth/repository"
	authService "github.com/brightleads/dmengine/modules/auth/service"
	userRepo "github.com/brightleads/dmengine/modules/users/repository"

	creditRepo "github.com/brightleads/dmengine/modules/credits/repository"
	creditService "github.com/brightleads/dmengine/modules/credits/service"

	jobHandler "github.com/brightleads/dmengine/modules/jobs/handler"
	jobPorts "github.com/brightleads/dmengine/modules/jobs/ports"
	jobRepo "github.com/brightleads/dmengine/modules/jobs/repository"
	jobService "github.com/brightleads/dmengine/modules/jobs/service"

	llmService "github.com/brightleads/dmengine/modules/llm/service"
	researchService "github.com/brightleads/dmengine/modules/research/service"
	searchService "github.com/brightleads/dmengine/modules/search/service"

	"github.com/gin-gonic/gin"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title Decision Maker Engine API
// @version 1.0
// @description Turns a spreadsheet of companies into decision-maker contacts, researched via web search and an LLM, billed against a credit ledger.
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@dmengine.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting decision maker engine API server",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	reporter, err := telemetry.Init(cfg.Telemetry, cfg.Server.Env)
	if err != nil {
		logger.Warn("Failed to initialize Sentry, error reporting will be disabled", zap.Error(err))
		reporter = &telemetry.Reporter{}
	}
	defer reporter.Flush(2 * time.Second)

	ctx := context.Background()

	pgClient, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgClient.Close()
	logger.Info("Connected to PostgreSQL")

	migrationsPath := "./migrations"
	if err := postgres.RunMigrations(ctx, cfg.Database, logger, migrationsPath); err != nil {
		logger.Fatal("Failed to run database migrations",
			zap.Error(err),
			zap.String("migrations_path", migrationsPath),
		)
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis")

	var s3Client *storage.S3Client
	if cfg.S3.Endpoint != "" && cfg.S3.Bucket != "" {
		s3Client, err = storage.NewS3Client(cfg.S3)
		if err != nil {
			logger.Warn("Failed to initialize S3 client, export artifacts will be disabled", zap.Error(err))
		} else {
			logger.Info("S3 client initialized", zap.String("bucket", cfg.S3.Bucket))
		}
	} else {
		logger.Info("S3 configuration not provided, export artifacts will be disabled")
	}

	mailClient := mail.New(cfg.Mail)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Telemetry.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(httpPlatform.RequestIDMiddleware())
	router.Use(httpPlatform.LoggerMiddleware(logger))
	router.Use(httpPlatform.CORSMiddleware())

	if cfg.Server.Env != "production" {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
		logger.Info("Swagger UI available at /swagger/index.html")
	}

	router.GET("/health", healthCheckHandler(ctx, pgClient, redisClient))
	router.GET("/ping", pingHandler)

	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authMiddleware := auth.AuthMiddleware(jwtManager)

	// Repositories
	userRepository := userRepo.NewUserRepository(pgClient.Pool)
	tokenRepository := authRepo.NewRefreshTokenRepository(pgClient.Pool)
	creditRepository := creditRepo.NewCreditRepository(pgClient.Pool)
	jobRepository := jobRepo.NewJobRepository(pgClient.Pool)

	// Domain services
	authSvc := authService.NewAuthService(
		userRepository,
		tokenRepository,
		jwtManager,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	creditEngine := creditService.NewCreditEngine(
		creditRepository,
		redisClient,
		logger,
		time.Duration(cfg.Credits.TopupExpiryDays)*24*time.Hour,
	)
	searchSvc := searchService.NewSearchService(cfg.Search)
	llmSvc := llmService.NewLLMService(cfg.LLM)
	researchSvc := researchService.NewResearchService(
		searchSvc,
		llmSvc,
		cfg.JobRunner.ScraperCacheMaxItems,
		time.Duration(cfg.JobRunner.ScraperCacheTTLS)*time.Second,
	)

	var exportWriter jobPorts.ExportWriter
	if s3Client != nil {
		exportWriter = s3Client
	}

	jobRunner := jobService.NewJobRunner(
		jobRepository,
		researchSvc,
		creditEngine,
		userRepository,
		exportWriter,
		mailClient,
		reporter,
		redisClient,
		logger,
		cfg.JobRunner,
		cfg.LLM,
		cfg.Credits.CreditsPerCompany,
		cfg.Credits.SerperCostPer1k,
	)

	// Handlers
	authHdl := authHandler.NewAuthHandler(authSvc)
	jobHdl := jobHandler.NewJobHandler(jobRunner, redisClient)

	v1 := router.Group("/api/v1")
	{
		authHdl.RegisterRoutes(v1)
		jobHandler.RegisterRoutes(v1, jobHdl, authMiddleware)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// healthCheckHandler godoc
// @Summary Health Check
// @Description Check the health status of the application and its dependencies
// @Tags system
// @Produce json
// @Success 200 {object} http.HealthResponse
// @Router /health [get]
func healthCheckHandler(ctx context.Context, pgClient *postgres.Client, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		services := make(map[string]string)

		if err := pgClient.Health(ctx); err != nil {
			services["postgres"] = "down"
		} else {
			services["postgres"] = "up"
		}

		if err := redisClient.Health(ctx); err != nil {
			services["redis"] = "down"
		} else {
			services["redis"] = "up"
		}

		httpPlatform.RespondWithHealth(c, services)
	}
}

// pingHandler godoc
// @Summary Ping
// @Description Simple ping endpoint to check if the API is responding
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /ping [get]
func pingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
