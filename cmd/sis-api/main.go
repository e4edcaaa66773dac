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

	_ "github.com/sisforge/sis-core-api/api/swagger"
	"github.com/sisforge/sis-core-api/internal/handler"
	"github.com/sisforge/sis-core-api/internal/middleware"
	"github.com/sisforge/sis-core-api/internal/repository"
	"github.com/sisforge/sis-core-api/internal/service"
	"github.com/sisforge/sis-core-api/pkg/cache"
	"github.com/sisforge/sis-core-api/pkg/config"
	"github.com/sisforge/sis-core-api/pkg/database"
	"github.com/sisforge/sis-core-api/pkg/jobs"
	"github.com/sisforge/sis-core-api/pkg/logger"
	corsmiddleware "github.com/sisforge/sis-core-api/pkg/middleware/cors"
	reqidmiddleware "github.com/sisforge/sis-core-api/pkg/middleware/requestid"
)

// @title SIS Core API
// @version 0.1.0
// @description Student information back end: enrollment, grading, transcripts and graduation
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
	sugar := logr.Sugar()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	// The cache layer degrades to pass-through when Redis is unreachable.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		sugar.Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	termRepo := repository.NewTermRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	gradeFinalRepo := repository.NewGradeFinalRepository(db)
	transcriptRepo := repository.NewTranscriptRepository(db)
	graduationRepo := repository.NewGraduationRepository(db,
		cfg.Graduation.DefaultRequiredCredits, cfg.Graduation.DefaultRequiredGPA)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	auditSvc := service.NewAuditService(userRepo, logr)

	var notificationSvc *service.NotificationService
	var queue *jobs.Queue
	if cfg.Notifications.Enabled {
		queue = jobs.NewQueue("notifications", func(ctx context.Context, job jobs.Job) error {
			sugar.Infow("notification delivered", "type", job.Type, "payload", job.Payload)
			return nil
		}, jobs.QueueConfig{
			Workers:    cfg.Notifications.Workers,
			BufferSize: cfg.Notifications.BufferSize,
			Logger:     logr,
		})
		queue.Start()
		defer queue.Stop()
		notificationSvc = service.NewNotificationService(queue, logr)
	}

	authSvc := service.NewAuthService(userRepo, auditSvc, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, sectionRepo,
		cacheRepo, auditSvc, notificationSvc, metricsSvc, validate, logr, service.EnrollmentConfig{
			WaitlistEnabled:  cfg.Enrollment.WaitlistEnabled,
			MaxWaitlistDepth: cfg.Enrollment.MaxWaitlistDepth,
		})
	gradeSvc := service.NewGradeService(gradeRepo, gradeFinalRepo, cacheRepo,
		auditSvc, notificationSvc, metricsSvc, validate, logr)
	transcriptSvc := service.NewTranscriptService(transcriptRepo, studentRepo, cacheRepo,
		metricsSvc, logr, cfg.Grading.TranscriptCacheTTL)
	graduationSvc := service.NewGraduationService(graduationRepo, cacheRepo,
		auditSvc, notificationSvc, metricsSvc, logr, cfg.Graduation.AuditCacheTTL)
	sectionSvc := service.NewSectionService(sectionRepo, courseRepo, termRepo,
		auditSvc, validate, logr)
	assessmentSvc := service.NewAssessmentService(assessmentRepo, auditSvc, validate, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Auth:        handler.NewAuthHandler(authSvc),
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		Grades:      handler.NewGradeHandler(gradeSvc),
		Students:    handler.NewStudentHandler(transcriptSvc, graduationSvc),
		Sections:    handler.NewSectionHandler(sectionSvc),
		Assessments: handler.NewAssessmentHandler(assessmentSvc),
		Metrics:     handler.NewMetricsHandler(metricsSvc),
	}, authSvc)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		sugar.Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("shutdown failed", "error", err)
	}
	if err := cacheRepo.Close(); err != nil {
		sugar.Warnw("closing cache failed", "error", err)
	}
}
