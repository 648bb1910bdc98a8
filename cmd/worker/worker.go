package main

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/hibiken/asynq"

	"grant-platform-backend/internal/ai"
	"grant-platform-backend/internal/config"
	"grant-platform-backend/internal/logger"
	"grant-platform-backend/internal/queue"
	"grant-platform-backend/internal/telemetry"
	"grant-platform-backend/internal/vectorindex"
	"grant-platform-backend/models"
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

	// Redis options for Asynq
	redisOpt, err := queue.RedisConnOpt(cfg)
	if err != nil {
		log.Fatal("Invalid Redis configuration for task queue:", err)
	}

	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	dispatcher := queue.NewDispatcher(asynqClient)
	processor := queue.NewTaskProcessor(pipeline, queueStore, docs, dispatcher)

	// Periodic sweeps pick up entries that were never dispatched or that a
	// failed attempt returned to pending.
	scheduler := gocron.NewScheduler(time.UTC)
	sweep := time.Duration(cfg.SweepInterval) * time.Second
	if _, err := scheduler.Every(sweep).Tag("extract-sweep").Do(func() {
		n, err := runner.ProcessExtractionBatch(context.Background())
		if err != nil {
			logger.Error("Extraction sweep failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("Extraction sweep processed entries", "count", n)
		}
	}); err != nil {
		log.Fatal("Failed to schedule extraction sweep:", err)
	}
	if _, err := scheduler.Every(sweep).Tag("vectorize-sweep").Do(func() {
		n, err := runner.ProcessVectorizationBatch(context.Background())
		if err != nil {
			logger.Error("Vectorization sweep failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("Vectorization sweep processed entries", "count", n)
		}
	}); err != nil {
		log.Fatal("Failed to schedule vectorization sweep:", err)
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task failed: %s, error: %v", task.Type(), err)
			}),
		},
	)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskDocumentExtract, processor.HandleExtract)
	mux.HandleFunc(queue.TaskDocumentVectorize, processor.HandleVectorize)

	log.Println("Starting document processing worker...")
	log.Printf("   Batch size: %d, sweep interval: %s", cfg.QueueBatchSize, sweep)

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
