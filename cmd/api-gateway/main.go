package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tutor-schedule-api/api/swagger"
	"github.com/noah-isme/tutor-schedule-api/internal/handler"
	internalmiddleware "github.com/noah-isme/tutor-schedule-api/internal/middleware"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/internal/repository"
	"github.com/noah-isme/tutor-schedule-api/internal/service"
	"github.com/noah-isme/tutor-schedule-api/pkg/cache"
	"github.com/noah-isme/tutor-schedule-api/pkg/config"
	"github.com/noah-isme/tutor-schedule-api/pkg/database"
	"github.com/noah-isme/tutor-schedule-api/pkg/jobs"
	"github.com/noah-isme/tutor-schedule-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutor-schedule-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutor-schedule-api/pkg/middleware/requestid"
	"github.com/noah-isme/tutor-schedule-api/pkg/orgtime"
)

// @title Tutor Schedule API
// @version 1.0.0
// @description Keeps class sessions in line with weekly templates and reports teacher workload.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zone, err := orgtime.LoadZone(cfg.Scheduling.Timezone)
	if err != nil {
		logr.Fatal("invalid organization timezone", zap.Error(err))
	}

	db, err := database.NewPostgres(ctx, cfg.Database, logr)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, logr); err != nil {
			logr.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	metrics := service.NewMetricsService()
	validate := validator.New()
	clock := orgtime.SystemClock{}

	var cacheRepo service.CacheRepository
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, workload cache disabled", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(client, logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Workload.CacheTTL, logr, cacheRepo != nil)

	sessionRepo := repository.NewSessionRepository(db)
	classRepo := repository.NewClassTemplateRepository(db)
	lockRepo := repository.NewJobLockRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	queue := jobs.NewQueue("downstream", jobs.QueueConfig{
		Workers:    cfg.Downstream.Workers,
		MaxRetries: cfg.Downstream.MaxRetries,
		RetryDelay: cfg.Downstream.RetryDelay,
		Logger:     logr,
	})
	recalculator := service.NewWebhookRecalculator(&http.Client{Timeout: cfg.Downstream.RequestTimeout}, map[string]string{
		service.JobPayrollRecalculate: cfg.Downstream.PayrollURL,
		service.JobTuitionRecalculate: cfg.Downstream.TuitionURL,
	}, logr)
	downstream := service.NewDownstreamTrigger(queue, recalculator, metrics, logr)
	queue.Start(ctx)

	lockSvc := service.NewJobLockService(lockRepo, clock, metrics, validate, logr)
	syncSvc := service.NewScheduleSyncService(service.ScheduleSyncDeps{
		Classes:    classRepo,
		Sessions:   sessionRepo,
		Locks:      lockSvc,
		Normalizer: service.NewStateNormalizer(sessionRepo, auditRepo, logr),
		Reconciler: service.NewReconciler(sessionRepo, service.NewConflictChecker(sessionRepo, logr), logr),
		Downstream: downstream,
		Cache:      cacheSvc,
		Audit:      auditRepo,
		Metrics:    metrics,
		Zone:       zone,
		Clock:      clock,
		Validator:  validate,
		Logger:     logr,
	}, service.ScheduleSyncConfig{RunTimeout: cfg.Scheduling.RunTimeout})
	workloadSvc := service.NewWorkloadService(sessionRepo, cacheSvc, zone, clock, validate, logr, cfg.Workload.CacheTTL)
	authSvc := service.NewAuthService(service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	var scheduler *service.SyncScheduler
	if cfg.Scheduling.CronEnabled {
		scheduler, err = service.NewSyncScheduler(syncSvc, zone, clock, service.SyncSchedulerConfig{
			Spec:            cfg.Scheduling.CronSpec,
			LookaheadMonths: cfg.Scheduling.LookaheadMonths,
			RunTimeout:      cfg.Scheduling.RunTimeout,
		}, logr)
		if err != nil {
			logr.Fatal("failed to configure schedule sync cron", zap.Error(err))
		}
		scheduler.Start()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	syncHandler := handler.NewScheduleSyncHandler(syncSvc, workloadSvc, lockSvc)
	api := r.Group(cfg.APIPrefix)
	admin := api.Group("/schedule-sync",
		internalmiddleware.JWT(authSvc),
		internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin),
	)
	admin.POST("/run",
		internalmiddleware.Audit(auditRepo, logr, models.AuditActionScheduleSyncRequested, models.JobScheduleSync),
		syncHandler.Run,
	)
	admin.GET("/workload", syncHandler.Workload)
	admin.GET("/workload/export", syncHandler.ExportWorkload)
	admin.GET("/locks", syncHandler.Locks)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("timezone", cfg.Scheduling.Timezone))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	queue.Stop()
}
