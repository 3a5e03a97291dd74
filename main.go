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

	"github.com/gin-gonic/gin"
	"github.com/zheomara/ScribbleToDoc/config"
	"github.com/zheomara/ScribbleToDoc/handler"
	"github.com/zheomara/ScribbleToDoc/middleware"
	"github.com/zheomara/ScribbleToDoc/model"
	"github.com/zheomara/ScribbleToDoc/pkg/logger"
	"github.com/zheomara/ScribbleToDoc/service"
)

func main() {
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

	// Initialize services
	minioSvc, err := service.NewMinioService(&cfg.Minio)
	if err != nil {
		slog.Error("failed to initialize MINIO service", "error", err)
		os.Exit(1)
	}

	// Ensure bucket exists
	if err := minioSvc.EnsureBucket(context.Background()); err != nil {
		slog.Error("failed to ensure MINIO bucket", "error", err)
		os.Exit(1)
	}

	var engine service.Transcriber
	switch cfg.Scribe.Engine {
	case "local":
		engine = service.NewTesseractEngine(cfg.OCR.MaxDimension)
		slog.Info("using local tesseract engine", "language", cfg.OCR.Language)
	default:
		engine = service.NewScribeService(&cfg.Scribe)
		slog.Info("using remote transcription engine", "api_url", cfg.Scribe.APIURL)
	}

	ocr := model.OCRConfig{
		Language:  cfg.OCR.Language,
		Grayscale: cfg.OCR.Grayscale,
		Contrast:  cfg.OCR.Contrast,
		Threshold: cfg.OCR.Threshold,
	}

	store := service.NewPageStore(cfg.Store.MaxPages)
	runner := service.NewBatchRunner(store, engine, ocr)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(cfg)
	pageHandler := handler.NewPageHandler(minioSvc, store, runner, cfg.Server.MaxUploadSizeMB)
	batchHandler := handler.NewBatchHandler(store, runner)
	exportHandler := handler.NewExportHandler(store, runner)

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

		protected.POST("/pages/upload", pageHandler.Upload)
		protected.GET("/pages", pageHandler.List)
		protected.GET("/pages/:id", pageHandler.Get)
		protected.GET("/pages/:id/image", pageHandler.Image)
		protected.POST("/pages/:id/retry", pageHandler.Retry)
		protected.DELETE("/pages/:id", pageHandler.Delete)
		protected.DELETE("/pages", pageHandler.Clear)

		protected.POST("/batch/start", batchHandler.Start)
		protected.GET("/batch/status", batchHandler.Status)
		protected.GET("/batch/output", batchHandler.Output)
		protected.GET("/batch/events", batchHandler.Events)

		protected.GET("/export/text", exportHandler.Text)
		protected.GET("/export/docx", exportHandler.Docx)
		protected.GET("/export/archive", exportHandler.Archive)
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
