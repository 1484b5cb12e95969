package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	_ "github.com/noah-isme/invigilation-api/api/swagger"
	"github.com/noah-isme/invigilation-api/internal/handler"
	"github.com/noah-isme/invigilation-api/internal/middleware"
	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/internal/service"
	"github.com/noah-isme/invigilation-api/pkg/config"
	"github.com/noah-isme/invigilation-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/invigilation-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/invigilation-api/pkg/middleware/requestid"
)

type routerDeps struct {
	auth          *service.AuthService
	schedule      *service.ScheduleService
	constraints   *service.ConstraintService
	requests      *service.ChangeRequestService
	faculty       *service.FacultyService
	imports       *service.ImportService
	exports       *service.ExportService
	notifications *service.NotificationService
	metrics       *service.MetricsService
	audit         middleware.AuditWriter
	db            handler.Pinger
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(deps.metrics, deps.db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(deps.auth)
	scheduleHandler := handler.NewScheduleHandler(deps.schedule, deps.notifications, deps.exports)
	constraintHandler := handler.NewConstraintHandler(deps.constraints)
	requestHandler := handler.NewChangeRequestHandler(deps.requests)
	facultyHandler := handler.NewFacultyHandler(deps.faculty, deps.schedule, deps.exports)
	uploadHandler := handler.NewUploadHandler(deps.imports)

	api := r.Group(cfg.APIPrefix)
	loginLimiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimit.LoginPerSecond), cfg.RateLimit.LoginBurst)
	api.POST("/auth/login", middleware.RateLimit(loginLimiter), authHandler.Login)

	secured := api.Group("", middleware.JWT(deps.auth))
	secured.GET("/auth/me", authHandler.Me)

	admin := secured.Group("", middleware.RequireRoles(models.RoleAdmin))
	faculty := secured.Group("", middleware.RequireFaculty())

	schedule := admin.Group("/schedule")
	schedule.POST("/generate", middleware.Audit(deps.audit, models.AuditActionScheduleGenerate, "schedule"), scheduleHandler.Generate)
	schedule.POST("/regenerate", middleware.Audit(deps.audit, models.AuditActionScheduleRegenerate, "schedule"), scheduleHandler.Regenerate)
	schedule.GET("/day", scheduleHandler.Day)
	schedule.DELETE("/day", middleware.Audit(deps.audit, models.AuditActionScheduleClear, "schedule"), scheduleHandler.ClearDay)
	schedule.PATCH("/reassign/:id", middleware.Audit(deps.audit, models.AuditActionReassign, "allocation"), scheduleHandler.Reassign)
	schedule.GET("/allocation/:id", scheduleHandler.Allocation)
	schedule.GET("/exam-dates", scheduleHandler.ExamDates)
	schedule.GET("/history", scheduleHandler.History)
	schedule.POST("/notify/day", middleware.Audit(deps.audit, models.AuditActionNotify, "schedule"), scheduleHandler.NotifyDay)
	schedule.GET("/export/day.csv", scheduleHandler.ExportCSV)
	schedule.GET("/export/day.pdf", scheduleHandler.ExportPDF)

	// These services write their own audit entries with before/after values.
	admin.GET("/settings/constraints", constraintHandler.Get)
	admin.PUT("/settings/constraints", constraintHandler.Update)
	admin.GET("/faculty/search", facultyHandler.Search)
	admin.POST("/faculty/admin/add", facultyHandler.Add)
	admin.POST("/faculty/admin/remove", facultyHandler.Remove)
	admin.GET("/faculty/admin/requests", requestHandler.List)
	admin.GET("/faculty/admin/requests/dangling", requestHandler.Dangling)
	admin.POST("/faculty/requests/:id/approve", requestHandler.Approve)
	admin.POST("/faculty/requests/:id/reject", requestHandler.Reject)

	upload := admin.Group("/upload")
	upload.POST("/faculty", uploadHandler.Faculty)
	upload.POST("/classrooms", uploadHandler.Classrooms)
	upload.POST("/exams", uploadHandler.Exams)
	upload.GET("/status", uploadHandler.Status)

	faculty.GET("/faculty/requests", requestHandler.Mine)
	faculty.POST("/faculty/requests", requestHandler.Submit)
	faculty.GET("/faculty/me/allocations", facultyHandler.MyAllocations)
	faculty.GET("/faculty/me/allocations/:id/letter.pdf", facultyHandler.Letter)

	return r
}
