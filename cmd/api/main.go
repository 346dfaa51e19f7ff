package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"mailflow/internal/config"
	"mailflow/internal/database"
	"mailflow/internal/events"
	"mailflow/internal/handler"
	"mailflow/internal/logger"
	"mailflow/internal/metrics"
	"mailflow/internal/middleware"
	"mailflow/internal/rbac"
	"mailflow/internal/repository"
	"mailflow/internal/service"
	"mailflow/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// @title           Mailflow API
// @version         1.0
// @description     Incoming mail workflow: validation, archival, history and audit.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load("configs/.env")
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logg, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Logger setup failed: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Fatal("server stopped", zap.Error(err))
	}
	logg.Info("server stopped cleanly")
}

func run(ctx context.Context, cfg *config.Config, logg *zap.Logger) error {
	db, err := database.NewConnection(cfg.Database.DSN(), logg)
	if err != nil {
		return err
	}
	logg.Info("connected to PostgreSQL", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.Name))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Repositories
	txManager := repository.NewTransactionManager(db)
	mailRepo := repository.NewMailRepository(db)
	archiveRepo := repository.NewArchiveRepository(db)
	outgoingRepo := repository.NewOutgoingMailRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	permissionRepo := repository.NewPermissionRepository(db)
	userRepo := repository.NewUserRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	statsRepo := repository.NewWorkflowStatsRepository(db)

	// Permission table is loaded once; grants changed at runtime need a restart.
	if err := permissionRepo.EnsureDefaults(ctx, rbac.DefaultGrants()); err != nil {
		return err
	}
	grants, err := permissionRepo.ListGrants(ctx)
	if err != nil {
		return err
	}
	auditService := service.NewAuditService(auditRepo)
	guard := rbac.NewPermissionGuard(rbac.NewPolicy(grants), auditService, logg, m)

	// Status change fan-out: websocket hub always, Redis when configured
	wsHub := websocket.NewHub(logg)
	publishers := []events.Publisher{wsHub}
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logg.Warn("redis unavailable, status events stay local", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			publishers = append(publishers, events.NewRedisPublisher(rdb, cfg.Redis.Channel))
		}
	}

	historyService := service.NewHistoryService(historyRepo, mailRepo)
	notificationService := service.NewNotificationService(notificationRepo, userRepo, logg, publishers...)
	deps := service.WorkflowDeps{
		Tx:            txManager,
		Mails:         mailRepo,
		Archives:      archiveRepo,
		Outgoing:      outgoingRepo,
		History:       historyService,
		Notifier:      notificationService,
		Metrics:       m,
		Logger:        logg,
		NotifyTimeout: cfg.Workflow.NotifyTimeout,
	}
	archiveService := service.NewMailArchiveService(deps)
	validationService := service.NewMailValidationService(deps, cfg.Workflow.AutoArchiveOnValidate)
	userService := service.NewUserService(txManager, userRepo, logg)
	statsService := service.NewWorkflowStatsService(statsRepo)

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinLogger(logg))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	secret := []byte(cfg.JWTSecret)
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, secret)
	})

	protected := router.Group("", middleware.RequireAuth(secret))
	handler.NewMailHandler(validationService, archiveService, historyService, guard, cfg.Workflow.ArchiveSweepDays).RegisterRoutes(protected)
	handler.NewHistoryHandler(historyService, guard).RegisterRoutes(protected)
	handler.NewAuditHandler(auditService, guard).RegisterRoutes(protected)
	handler.NewUserHandler(userService, guard).RegisterRoutes(protected)
	handler.NewWorkflowStatsHandler(statsService, guard).RegisterRoutes(protected)
	handler.NewNotificationHandler(notificationService).RegisterRoutes(protected)
	handler.NewRoleHandler(guard).RegisterRoutes(protected)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logg.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if rdb != nil {
			_ = rdb.Close()
		}
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return err
	})
	return g.Wait()
}
