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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/wigshare/wigshare-api/api/swagger"
	"github.com/wigshare/wigshare-api/internal/handler"
	"github.com/wigshare/wigshare-api/internal/middleware"
	"github.com/wigshare/wigshare-api/internal/repository"
	"github.com/wigshare/wigshare-api/internal/service"
	"github.com/wigshare/wigshare-api/pkg/cache"
	"github.com/wigshare/wigshare-api/pkg/config"
	"github.com/wigshare/wigshare-api/pkg/database"
	"github.com/wigshare/wigshare-api/pkg/logger"
	corsmiddleware "github.com/wigshare/wigshare-api/pkg/middleware/cors"
	reqidmiddleware "github.com/wigshare/wigshare-api/pkg/middleware/requestid"
	"github.com/wigshare/wigshare-api/pkg/storage"
)

// @title WigShare API
// @version 0.1.0
// @description Wig request review and donation workflow
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, summary cache disabled", "error", err)
		redisClient = nil
	}

	evidenceStore, err := storage.NewLocalStorage(cfg.Evidence.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init evidence storage", "error", err)
	}
	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Evidence.SignedURLSecret, cfg.Evidence.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	analysisRepo := repository.NewAnalysisRepository(db)
	wigRepo := repository.NewWigRepository(db)
	donationRepo := repository.NewDonationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	notifier := service.NewQueueNotifier(service.LogSink(logr), cfg.Notifications, logr)
	notifier.Start()
	defer notifier.Stop()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "wigshare-api",
	})

	requestSvc := service.NewRequestService(requestRepo, userRepo, evidenceStore, signer, notifier, cacheRepo, metricsSvc, cfg.Evidence, validate, logr)

	analysisOpts := []service.AnalysisServiceOption{service.WithAnalysisMetrics(metricsSvc)}
	if cfg.Summary.CacheEnabled {
		analysisOpts = append(analysisOpts, service.WithSummaryCache(cacheRepo, cfg.Summary.CacheTTL))
	}
	analysisSvc := service.NewAnalysisService(analysisRepo, requestRepo, userRepo, notifier, validate, logr, analysisOpts...)

	donationSvc := service.NewDonationService(donationRepo, userRepo, notifier, cacheRepo, metricsSvc, cfg.Donations.RevertWindow, validate, logr)
	wigSvc := service.NewWigService(wigRepo, validate, logr)
	exportSvc := service.NewExportService(donationRepo, exportStore, signer, service.ExportConfig{APIPrefix: cfg.APIPrefix}, logr, nil, nil)

	handlers := handler.Handlers{
		Auth:      handler.NewAuthHandler(authSvc),
		Requests:  handler.NewRequestHandler(requestSvc),
		Analyses:  handler.NewAnalysisHandler(analysisSvc),
		Donations: handler.NewDonationHandler(donationSvc, exportSvc),
		Wigs:      handler.NewWigHandler(wigSvc),
		Metrics:   handler.NewMetricsHandler(metricsSvc),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", handlers.Metrics.Health)
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", handlers.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, handlers, authSvc, userRepo)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
}
