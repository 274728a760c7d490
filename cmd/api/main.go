package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marek/imagesim/internal/api"
	"github.com/marek/imagesim/internal/api/middleware"
	"github.com/marek/imagesim/internal/config"
	"github.com/marek/imagesim/internal/embedding"
	"github.com/marek/imagesim/internal/index"
	"github.com/marek/imagesim/internal/logger"
	"github.com/marek/imagesim/internal/queue"
	"github.com/marek/imagesim/internal/repository"
	"github.com/marek/imagesim/internal/service"
	"github.com/marek/imagesim/internal/storage"
)

func main() {
	// Initialize logger from environment configuration
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	imageRepo := repository.NewImageRepository(db)

	ctx := context.Background()

	// Initialize vector index
	vectorIndex, err := index.NewQdrantIndex(&index.QdrantConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		Dimension:       cfg.Embedding.Dimensions,
		HNSWM:           uint64(cfg.Qdrant.HNSWM),
		HNSWEfConstruct: uint64(cfg.Qdrant.HNSWEfConstruct),
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize vector index")
	}
	defer vectorIndex.Close()

	if err := vectorIndex.EnsureCollection(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure vector collection")
	}

	// Initialize blob storage (supports MinIO, R2, S3)
	blobStore, err := storage.NewBlobStore(&storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize blob storage")
	}
	if s3Store, ok := blobStore.(*storage.S3Store); ok {
		if err := s3Store.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
	}

	// Initialize embedder and pay the model cold start before serving
	embedder := embedding.NewJinaEmbedder(&embedding.JinaConfig{
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
	})
	warmupCtx, warmupCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := embedder.Warmup(warmupCtx); err != nil {
		appLogger.WithError(err).Warn("Embedder warmup failed, continuing")
	}
	warmupCancel()

	// Task queue with the in-process indexing worker pool
	jobQueue := queue.NewMemoryQueue(&queue.MemoryQueueConfig{
		Workers:     cfg.Pipeline.Workers,
		Depth:       cfg.Pipeline.QueueDepth,
		BackoffBase: cfg.Pipeline.BackoffBase,
		BackoffMax:  cfg.Pipeline.BackoffMax,
	})

	worker := service.NewIndexWorker(imageRepo, blobStore, vectorIndex, embedder, cfg.Pipeline.MaxAttempts, appLogger)

	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()
	jobQueue.Start(workerCtx, worker.Handle)

	// Reconciliation sweeper recovers lost enqueues and dead workers
	sweeper := service.NewSweeper(imageRepo, jobQueue, &service.SweeperConfig{
		StuckThreshold: cfg.Pipeline.StuckThreshold,
		SweepInterval:  cfg.Pipeline.SweepInterval,
		MaxAttempts:    cfg.Pipeline.MaxAttempts,
	}, appLogger)
	go sweeper.Run(workerCtx)

	// Services
	ingestService := service.NewIngestService(imageRepo, blobStore, jobQueue, appLogger)
	searchService := service.NewSearchService(vectorIndex, embedder, blobStore, appLogger, &service.SearchConfig{
		DefaultTopK: cfg.Search.DefaultTopK,
		MaxTopK:     cfg.Search.MaxTopK,
		Timeout:     cfg.Search.Timeout,
	})
	adminService := service.NewAdminService(imageRepo, vectorIndex, blobStore, jobQueue, appLogger)

	// HTTP server
	router := api.SetupRouter(ingestService, searchService, adminService, appLogger, cfg.Server.Mode, middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithField("port", cfg.Server.Port).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Server failed")
		}
	}()

	// Graceful shutdown: stop intake, drain in-flight jobs, then exit
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server shutdown failed")
	}

	workerCancel()
	jobQueue.Close()

	appLogger.Info("Stopped")
}
