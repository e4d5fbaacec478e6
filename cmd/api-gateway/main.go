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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/labsphere/labsphere-api/api/swagger"
	"github.com/labsphere/labsphere-api/internal/handler"
	"github.com/labsphere/labsphere-api/internal/middleware"
	"github.com/labsphere/labsphere-api/internal/models"
	"github.com/labsphere/labsphere-api/internal/repository"
	"github.com/labsphere/labsphere-api/internal/service"
	"github.com/labsphere/labsphere-api/pkg/cache"
	"github.com/labsphere/labsphere-api/pkg/config"
	"github.com/labsphere/labsphere-api/pkg/database"
	"github.com/labsphere/labsphere-api/pkg/jobs"
	"github.com/labsphere/labsphere-api/pkg/logger"
	"github.com/labsphere/labsphere-api/pkg/storage"
	corsmiddleware "github.com/labsphere/labsphere-api/pkg/middleware/cors"
	reqidmiddleware "github.com/labsphere/labsphere-api/pkg/middleware/requestid"
)

// @title LabSphere API
// @version 1.0.0
// @description Computer lab and classroom management service
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	labRepo := repository.NewLabRepository(db)
	computerRepo := repository.NewComputerRepository(db)
	classRepo := repository.NewClassRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	txManager := repository.NewTxManager(db)

	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Cache.TTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "labsphere-api",
	})
	userService := service.NewUserService(userRepo, validate, logr)
	labService := service.NewLabService(labRepo, computerRepo, validate, logr)
	classService := service.NewClassService(classRepo, labRepo, userRepo, cacheService, validate, logr)
	timetableService := service.NewTimetableService(timetableRepo, classRepo, metricsService, validate, logr)
	sessionService := service.NewSessionService(sessionRepo, classRepo, metricsService, validate, logr)
	groupService := service.NewGroupService(groupRepo, enrollmentRepo, computerRepo, userRepo, classRepo, txManager, metricsService, cfg.Groups.DefaultMaxMembers, validate, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, groupRepo, logr)
	assignmentService := service.NewAssignmentService(assignmentRepo, classRepo, validate, logr)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, enrollmentRepo, validate, logr)
	var fileStore *storage.FileStore
	var signer *storage.DownloadSigner
	if cfg.Exports.Enabled {
		fileStore, err = storage.NewFileStore(cfg.Exports.Dir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
		}
		signer = storage.NewDownloadSigner(cfg.JWT.Secret, cfg.Exports.ResultTTL)
	}
	exportService := service.NewExportService(enrollmentRepo, timetableRepo, classRepo, fileStore, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.ResultTTL,
	}, logr)

	var exportJobService *service.ExportJobService
	var exportQueue *jobs.Queue
	if cfg.Exports.Enabled {
		exportJobRepo := repository.NewExportJobRepository(db)
		exportWorker := service.NewExportWorker(exportJobRepo, exportService, 3, logr)
		exportQueue = jobs.NewQueue("exports", exportWorker.Handle, jobs.Options{
			Workers: cfg.Exports.Workers,
			Logger:  logr,
		})
		exportJobService = service.NewExportJobService(exportJobRepo, classRepo, exportQueue, exportService, service.ExportJobConfig{
			ResultTTL:       cfg.Exports.ResultTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
		}, validate, logr)
	}

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	labHandler := handler.NewLabHandler(labService)
	classHandler := handler.NewClassHandler(classService)
	timetableHandler := handler.NewTimetableHandler(timetableService)
	sessionHandler := handler.NewSessionHandler(sessionService)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentService, groupService)
	groupHandler := handler.NewGroupHandler(groupService)
	assignmentHandler := handler.NewAssignmentHandler(assignmentService)
	submissionHandler := handler.NewSubmissionHandler(submissionService)
	exportHandler := handler.NewExportHandler(exportService, exportJobService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authService), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authService))

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor)

	users := protected.Group("/users")
	{
		users.GET("", adminOnly, userHandler.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
		users.POST("", adminOnly, middleware.Audit(userRepo, "CREATE", "users"), userHandler.Create)
		users.PUT("/:id", adminOnly, middleware.Audit(userRepo, "UPDATE", "users"), userHandler.Update)
		users.DELETE("/:id", adminOnly, middleware.Audit(userRepo, "DELETE", "users"), userHandler.Delete)
	}

	labs := protected.Group("/labs")
	{
		labs.GET("", labHandler.List)
		labs.GET("/:id", labHandler.Get)
		labs.POST("", adminOnly, labHandler.Create)
		labs.PUT("/:id", adminOnly, labHandler.Update)
		labs.DELETE("/:id", adminOnly, labHandler.Delete)
	}

	computers := protected.Group("/computers")
	{
		computers.GET("", labHandler.ListComputers)
		computers.GET("/:id", labHandler.GetComputer)
		computers.POST("", adminOnly, labHandler.CreateComputer)
		computers.PUT("/:id", adminOnly, labHandler.UpdateComputer)
		computers.DELETE("/:id", adminOnly, labHandler.DeleteComputer)
	}

	classes := protected.Group("/classes")
	{
		classes.GET("", classHandler.List)
		classes.GET("/:id", classHandler.Get)
		classes.POST("", staff, classHandler.Create)
		classes.PUT("/:id", staff, classHandler.Update)
		classes.DELETE("/:id", adminOnly, classHandler.Delete)
		classes.GET("/:id/groups", groupHandler.ListByClass)
		if cfg.Exports.Enabled {
			classes.GET("/:id/export/roster", staff, exportHandler.Roster)
			classes.GET("/:id/export/timetable", staff, exportHandler.Timetable)
		}
	}

	timetable := protected.Group("/timetable")
	{
		timetable.GET("", timetableHandler.List)
		timetable.POST("/check", staff, timetableHandler.Check)
		timetable.POST("", staff, timetableHandler.Create)
		timetable.PUT("/:id", staff, timetableHandler.Update)
		timetable.DELETE("/:id", staff, timetableHandler.Delete)
	}

	sessions := protected.Group("/sessions")
	{
		sessions.GET("", sessionHandler.List)
		sessions.POST("/check", staff, sessionHandler.Check)
		sessions.POST("", staff, sessionHandler.Create)
		sessions.PUT("/:id", staff, sessionHandler.Update)
		sessions.DELETE("/:id", staff, sessionHandler.Delete)
	}

	enrollments := protected.Group("/enrollments")
	{
		enrollments.GET("", enrollmentHandler.List)
		enrollments.GET("/:id", enrollmentHandler.Get)
		enrollments.POST("", staff, enrollmentHandler.Enroll)
		enrollments.DELETE("/:id", staff, enrollmentHandler.Withdraw)
	}

	groups := protected.Group("/groups")
	{
		groups.GET("/:id", groupHandler.Get)
		groups.POST("", staff, groupHandler.Create)
		groups.PUT("/:id/leader", staff, groupHandler.ReassignLeader)
		groups.DELETE("/:id/members/:studentId", staff, groupHandler.RemoveMember)
		groups.DELETE("/:id", staff, groupHandler.Delete)
	}

	assignments := protected.Group("/assignments")
	{
		assignments.GET("", assignmentHandler.List)
		assignments.GET("/:id", assignmentHandler.Get)
		assignments.GET("/:id/submissions", staff, submissionHandler.ListByAssignment)
		assignments.POST("", staff, assignmentHandler.Create)
		assignments.PUT("/:id", staff, assignmentHandler.Update)
		assignments.DELETE("/:id", staff, assignmentHandler.Delete)
	}

	submissions := protected.Group("/submissions")
	{
		submissions.POST("", middleware.RequireRoles(models.RoleStudent), submissionHandler.Submit)
		submissions.GET("/:id/grade", submissionHandler.GetGrade)
		submissions.PUT("/:id/grade", staff, submissionHandler.Grade)
	}

	if cfg.Exports.Enabled {
		exports := protected.Group("/exports")
		{
			exports.POST("", staff, exportHandler.CreateJob)
			exports.GET("/jobs/:id", staff, exportHandler.JobStatus)
		}
		// Download links carry their own signed token, no session needed.
		api.GET("/exports/download/:token", exportHandler.Download)
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if exportQueue != nil {
		exportQueue.Start(workerCtx)
		exportJobService.RecoverPendingJobs(workerCtx)
		exportJobService.StartCleanup(workerCtx)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
	if exportQueue != nil {
		stopWorkers()
		exportQueue.Stop()
	}
}
