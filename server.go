package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/onpointdev/ops_backend/admin"
	"bitbucket.org/onpointdev/ops_backend/config"
	"bitbucket.org/onpointdev/ops_backend/middlewares"
	"bitbucket.org/onpointdev/ops_backend/models"
	"bitbucket.org/onpointdev/ops_backend/projects"
	"bitbucket.org/onpointdev/ops_backend/qbosync"
	"bitbucket.org/onpointdev/ops_backend/utils"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedis()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	// AutoMigrate can run DDL that blocks tables; allow running it as a
	// separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	syncService := qbosync.NewService(db, config.GetRedisLock())
	tokenManager := qbosync.NewTokenManager(db)
	projectService := projects.NewService(db)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(cors.New(buildCorsConfig()))
	r.Use(middlewares.AuthMiddleware())
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/db-check", dbCheckHandler(gormPing(db)))

	r.POST("/auth/login", admin.LoginHandler())
	r.GET("/auth/me", middlewares.RequireAuth(), admin.MeHandler())

	adminRoutes := r.Group("/admin", middlewares.RequireAuth(), middlewares.RequireAdmin())
	{
		adminRoutes.GET("/users", admin.ListUsersHandler())
		adminRoutes.POST("/users", admin.CreateUserHandler())
		adminRoutes.PUT("/users/:id", admin.UpdateUserHandler())
		adminRoutes.DELETE("/users/:id", admin.DeactivateUserHandler())

		adminRoutes.POST("/project-managers", admin.CreateProjectManagerHandler())
		adminRoutes.PUT("/project-managers/:id", admin.UpdateProjectManagerHandler())
		adminRoutes.DELETE("/project-managers/:id", admin.DeactivateProjectManagerHandler())

		adminRoutes.POST("/work-crews", admin.CreateWorkCrewHandler())
		adminRoutes.PUT("/work-crews/:id", admin.UpdateWorkCrewHandler())
		adminRoutes.DELETE("/work-crews/:id", admin.DeactivateWorkCrewHandler())
	}

	authed := r.Group("", middlewares.RequireAuth())
	{
		authed.GET("/project-managers", admin.ListProjectManagersHandler())
		authed.GET("/work-crews", admin.ListWorkCrewsHandler())

		authed.GET("/qbo/status", qbosync.StatusHandler(syncService))
		authed.GET("/qbo/connect", qbosync.ConnectHandler())
		authed.POST("/qbo/sync/customers", qbosync.SyncCustomersHandler(syncService))
		authed.POST("/qbo/sync/transactions", qbosync.SyncTransactionsHandler(syncService))
		authed.GET("/qbo/sync/runs", qbosync.SyncRunsHandler(syncService))
		authed.GET("/qbo/sync/runs/export", qbosync.SyncRunsExportHandler(syncService))

		authed.GET("/projects", projects.ListAssignableProjectsHandler(projectService))
		authed.GET("/projects/:id/assignments", projects.AssignmentBundleHandler(projectService))
		authed.PUT("/projects/:id/assignments", projects.SaveAssignmentHandler(projectService))
		authed.GET("/projects/:id/events", projects.ProjectEventsHandler(projectService))
	}

	// The OAuth provider calls back unauthenticated.
	r.GET("/qbo/callback", qbosync.CallbackHandler(tokenManager))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()
	logger.WithFields(logrus.Fields{"port": port}).Info("server listening")

	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	defer cancelScheduler()
	go runSyncScheduler(schedulerCtx, syncService, logger)

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err.Error())
		}
	}

	cancelScheduler()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "shutdown"}).Error(err.Error())
	}
}

// dbCheckHandler pings the database so monitoring can tell a live
// process from one that lost its database.
func dbCheckHandler(ping func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func gormPing(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

func buildCorsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Deny all when not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	return corsConfig
}

// runSyncScheduler fires system-triggered syncs on a fixed interval.
// Disabled unless QBO_SYNC_INTERVAL_MINUTES is a positive number.
func runSyncScheduler(ctx context.Context, svc *qbosync.Service, logger *logrus.Logger) {
	minutes, err := strconv.Atoi(os.Getenv("QBO_SYNC_INTERVAL_MINUTES"))
	if err != nil || minutes <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(minutes) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := svc.RunCustomersSync(ctx, models.SyncTriggeredSystem); err != nil {
			logScheduledSyncError(logger, models.EntityClassCustomers, err)
		}
		if _, err := svc.RunTransactionsSync(ctx, models.SyncTriggeredSystem); err != nil {
			logScheduledSyncError(logger, models.EntityClassTransactions, err)
		}
	}
}

func logScheduledSyncError(logger *logrus.Logger, entityClass string, err error) {
	// A connection that was never set up is expected on fresh installs;
	// keep the noise down.
	level := logrus.ErrorLevel
	if errors.Is(err, qbosync.ErrNoConnection) || errors.Is(err, qbosync.ErrSyncInProgress) {
		level = logrus.WarnLevel
	}
	logger.WithFields(logrus.Fields{
		"field":        "sync scheduler",
		"entity_class": entityClass,
	}).Log(level, err.Error())
}
