package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DR-Danke/Kompass-sub003/config"
	"github.com/DR-Danke/Kompass-sub003/handler"
	"github.com/DR-Danke/Kompass-sub003/middleware"
	"github.com/DR-Danke/Kompass-sub003/pkg/logger"
	"github.com/DR-Danke/Kompass-sub003/service"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Secrets may come from a .env file instead of the shell environment
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")

	// Initialize job store
	service.InitJobStore(&cfg.Store)
	store := service.GetJobStore()
	if redisStore, ok := store.(*service.RedisJobStore); ok {
		if err := redisStore.Ping(context.Background()); err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
	}
	jobs := service.NewJobManager(store)

	// Object storage is optional; without it extracted images are not persisted
	// and the image tool endpoints report themselves unconfigured.
	var storage service.ImageStorer
	if cfg.Minio.Endpoint != "" {
		minioSvc, err := service.NewMinioService(&cfg.Minio)
		if err != nil {
			slog.Error("failed to initialize MINIO service", "error", err)
			os.Exit(1)
		}
		if err := minioSvc.EnsureBucket(context.Background()); err != nil {
			slog.Error("failed to ensure MINIO bucket", "error", err)
			os.Exit(1)
		}
		storage = minioSvc
	} else {
		slog.Warn("object storage not configured, extracted images will not be persisted")
	}

	// Initialize services
	ai := service.NewProviderSelector(&cfg.AI)
	pdfExtractor := service.NewPDFExtractor(&cfg.Extraction)
	spreadsheetExtractor := service.NewSpreadsheetExtractor(&cfg.Extraction, ai)
	imageExtractor := service.NewImageExtractor(ai, storage)
	processor := service.NewBatchProcessor(jobs, pdfExtractor, spreadsheetExtractor, imageExtractor)

	catalog := service.NewCatalogClient(&cfg.Catalog)
	importer := service.NewImporter(jobs, catalog)
	imageOps := service.NewImageOps(&cfg.ImageTools, storage)
	hsCodes := service.NewHsCodeService(ai)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(cfg)
	extractionHandler := handler.NewExtractionHandler(cfg, jobs, processor)
	importHandler := handler.NewImportHandler(importer)
	toolsHandler := handler.NewToolsHandler(imageOps, hsCodes)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New() // Use New() instead of Default() to avoid default middleware

	// Add custom middleware
	router.Use(middleware.RequestID())                 // Request ID for tracing
	router.Use(middleware.Recovery())                  // Panic recovery
	router.Use(middleware.RequestLogger())             // Access logging
	router.Use(corsMiddleware())                       // CORS
	router.Use(middleware.RateLimit(100, time.Minute)) // Rate limiting: 100 requests per minute

	// Health check endpoint
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
		protected.POST("/extraction/upload", extractionHandler.Upload)
		protected.GET("/extraction/jobs", extractionHandler.List)
		protected.GET("/extraction/jobs/:id/status", extractionHandler.GetStatus)
		protected.GET("/extraction/jobs/:id/results", extractionHandler.GetResults)
		protected.POST("/extraction/import", importHandler.Confirm)
		protected.POST("/images/remove-background", toolsHandler.RemoveBackground)
		protected.POST("/images/resize", toolsHandler.Resize)
		protected.POST("/hs-code/suggest", toolsHandler.SuggestHsCode)
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
