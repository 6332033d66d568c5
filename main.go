package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AnTengye/solarflow/config"
	"github.com/AnTengye/solarflow/handler"
	"github.com/AnTengye/solarflow/middleware"
	"github.com/AnTengye/solarflow/pkg/logger"
	"github.com/AnTengye/solarflow/service"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully",
		"sheet_backend", cfg.Sheet.Backend, "upload_backend", cfg.Uploads.Backend)

	if err := service.SetTimezone(cfg.Sheet.Timezone); err != nil {
		slog.Error("failed to set sheet timezone", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	catalogue, err := service.LoadCatalogue(cfg.StagesFile)
	if err != nil {
		slog.Error("failed to load stage catalogue", "error", err)
		os.Exit(1)
	}

	backends, err := service.NewBackends(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize backends", "error", err)
		os.Exit(1)
	}

	if backends.Minio != nil {
		if err := backends.Minio.EnsureBucket(ctx); err != nil {
			slog.Error("failed to ensure MINIO bucket", "error", err)
			os.Exit(1)
		}
	}

	workflow, err := backends.NewWorkflow(catalogue, service.GetRecordStore(), cfg.Uploads)
	if err != nil {
		slog.Error("invalid stage catalogue", "error", err)
		os.Exit(1)
	}

	if cfg.Sheet.ValidateHeaders {
		if err := workflow.ValidateSchema(ctx); err != nil {
			slog.Error("sheet headers do not match the stage catalogue", "error", err)
			os.Exit(1)
		}
		slog.Info("sheet headers validated", "stages", len(catalogue.Stages))
	}

	var cache service.ReportCache
	if cfg.Redis.Addr != "" {
		redisCache := service.NewRedisCache(&cfg.Redis)
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			slog.Warn("redis unavailable, yield report will not be cached", "error", err)
		} else {
			cache = redisCache
		}
	}

	monitorSvc := service.NewMonitorService(&cfg.Monitor)
	reportSvc := service.NewReportService(backends.Rows, monitorSvc, cache, &cfg.Report)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(service.NewUserDirectory(backends.Rows), &cfg.Auth)
	stageHandler := handler.NewStageHandler(workflow)
	reportHandler := handler.NewReportHandler(reportSvc)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger("/health"))
	router.Use(corsMiddleware())
	router.Use(noCacheMiddleware())
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(middleware.RateLimit(cfg.Server.RateLimit, time.Minute))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Public routes
	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
	}

	// Protected routes
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.GET("/stages", stageHandler.ListStages)
		protected.GET("/stages/:stage", stageHandler.GetStage)
		protected.GET("/stages/:stage/export", stageHandler.Export)
		protected.GET("/stages/:stage/records/:id", stageHandler.GetRecord)
		protected.POST("/stages/:stage/records/:id", stageHandler.Submit)
		protected.POST("/stages/:stage/bulk", middleware.RequireAdmin(), stageHandler.Bulk)
		protected.GET("/options/:name", stageHandler.Options)
		protected.GET("/reports/yield", reportHandler.Yield)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Content-Disposition, Retry-After")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// noCacheMiddleware keeps sheet data out of browser and proxy caches
func noCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
		}
		c.Next()
	}
}
