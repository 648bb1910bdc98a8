package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"grant-platform-backend/internal/ai"
	"grant-platform-backend/internal/config"
	"grant-platform-backend/internal/logger"
	"grant-platform-backend/internal/queue"
	"grant-platform-backend/internal/telemetry"
	"grant-platform-backend/internal/vectorindex"
	"grant-platform-backend/middleware"
	"grant-platform-backend/models"
	"grant-platform-backend/routes"
	"grant-platform-backend/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Connect to Redis
	redisClient, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	// Telemetry
	shutdownTracer, err := telemetry.InitTracer("grant-platform-backend", cfg.OTLPEndpoint, cfg.TracingSampleRatio)
	if err != nil {
		log.Printf("Tracing disabled: %v", err)
	} else {
		defer shutdownTracer()
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Printf("Metrics disabled: %v", err)
	}

	// Core services
	blobs, err := services.NewDiskBlobStore(cfg.FileStorageDir)
	if err != nil {
		log.Fatal("Failed to initialize blob storage:", err)
	}

	cache := ai.NewEmbeddingCache(redisClient, time.Duration(cfg.EmbeddingCacheTTL)*time.Second)
	embedder, err := ai.NewEmbeddingClient(context.Background(), cfg, cache)
	if err != nil {
		log.Fatal("Failed to initialize embedding client:", err)
	}
	defer embedder.Close()

	var index services.IndexClient
	if cfg.IndexEnabled {
		index = vectorindex.NewClient(cfg)
	}

	docs := services.NewMongoDocumentStore(db)
	grants := services.NewMongoGrantStore(db)
	queueStore := services.NewMongoQueueStore(db)
	events := models.NewProcessingEventLog(db)
	sink := services.NewMongoVectorSink(db, grants, index, events, metrics)

	extractor := services.NewTextExtractor(cfg)
	chunker := services.NewTextChunker(cfg)
	pipeline := services.NewPipeline(cfg, docs, queueStore, blobs, extractor, chunker, embedder, sink, events, metrics)
	runner := services.NewWorkerRunner(cfg, pipeline, queueStore, docs)

	// Task dispatch
	redisOpt, err := queue.RedisConnOpt(cfg)
	if err != nil {
		log.Fatal("Invalid Redis configuration for task queue:", err)
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	dispatcher := queue.NewDispatcher(asynqClient)

	importer := services.NewRequirementImporter(cfg, grants, docs, queueStore, blobs, dispatcher)

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.TracingMiddleware())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	// Document routes
	router.POST("/documents", routes.HandleDocumentUpload(cfg, docs, queueStore, blobs, dispatcher))
	router.GET("/documents/:id/status", routes.HandleDocumentStatus(docs, events))
	router.POST("/documents/:id/requeue", routes.HandleDocumentRequeue(docs, queueStore, dispatcher))
	router.POST("/applications/:id/import-requirements", routes.HandleRequirementImport(importer))

	// Worker routes
	router.POST("/worker/extract", routes.HandleWorkerExtract(runner))
	router.POST("/worker/vectorize", routes.HandleWorkerVectorize(runner))
	router.POST("/worker/documents", routes.HandleWorkerDocument(runner))

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
