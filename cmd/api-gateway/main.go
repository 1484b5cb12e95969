package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/repository"
	"github.com/noah-isme/invigilation-api/internal/service"
	"github.com/noah-isme/invigilation-api/pkg/cache"
	"github.com/noah-isme/invigilation-api/pkg/config"
	"github.com/noah-isme/invigilation-api/pkg/database"
	"github.com/noah-isme/invigilation-api/pkg/jobs"
	"github.com/noah-isme/invigilation-api/pkg/lock"
	"github.com/noah-isme/invigilation-api/pkg/logger"
)

// @title Invigilation Duty API
// @version 1.0.0
// @description Exam invigilation scheduling: rosters, allocation, change requests and duty letters.
// @BasePath /
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	facultyRepo := repository.NewFacultyRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	examRepo := repository.NewExamRepository(db)
	allocationRepo := repository.NewAllocationRepository(db)
	requestRepo := repository.NewChangeRequestRepository(db)
	constraintRepo := repository.NewConstraintRepository(db)

	var (
		cacheRepo service.CacheRepository
		locker    lock.Locker
	)
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "invigilation", logr)
		locker = lock.NewRedisLocker(redisClient, cfg.Scheduler.LockTTL, logr)
	} else {
		cacheRepo = repository.NewMemoryCacheRepository(cfg.Cache.TTL)
		locker = lock.NewKeyedMutex()
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled)

	authSvc := service.NewAuthService(userRepo, facultyRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	constraintSvc := service.NewConstraintService(constraintRepo, userRepo, validate, logr, service.ConstraintServiceConfig{
		DefaultMaxHoursPerDay:  cfg.Scheduler.DefaultMaxHoursPerDay,
		DefaultNoSameDayRepeat: cfg.Scheduler.DefaultNoSameDayRepeat,
	})
	scheduleSvc := service.NewScheduleService(facultyRepo, classroomRepo, examRepo, allocationRepo, constraintSvc, db, locker, cacheSvc, metrics, validate, logr, service.ScheduleServiceConfig{
		SessionHours: cfg.Scheduler.SessionHours,
		Policy:       cfg.Scheduler.Policy,
		CacheTTL:     cfg.Cache.TTL,
	})
	requestSvc := service.NewChangeRequestService(requestRepo, allocationRepo, facultyRepo, userRepo, metrics, validate, logr)
	facultySvc := service.NewFacultyService(facultyRepo, userRepo, validate, logr)
	importSvc := service.NewImportService(facultyRepo, classroomRepo, examRepo, db, cacheSvc, metrics, userRepo, validate, logr, service.ImportServiceConfig{
		MaxFileSizeBytes: cfg.Imports.MaxFileSizeBytes,
	})
	exportSvc := service.NewExportService(allocationRepo, nil, nil, logr)

	worker := service.NewNotificationWorker(service.NewLogNotifier(logr), allocationRepo, cacheSvc, metrics, logr)
	noticeQueue := jobs.NewQueue[service.DutyNotice]("duty-notifications", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.Retries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	noticeQueue.Start(ctx)
	defer noticeQueue.Stop()
	notificationSvc := service.NewNotificationService(allocationRepo, noticeQueue, metrics, logr)

	requestSvc.StartDanglingMonitor(ctx, cfg.Requests.DanglingCheckInterval)

	router := newRouter(cfg, logr, routerDeps{
		auth:          authSvc,
		schedule:      scheduleSvc,
		constraints:   constraintSvc,
		requests:      requestSvc,
		faculty:       facultySvc,
		imports:       importSvc,
		exports:       exportSvc,
		notifications: notificationSvc,
		metrics:       metrics,
		audit:         userRepo,
		db:            db,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logr.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	cancel()
	logr.Info("server stopped")
}
