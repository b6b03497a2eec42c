package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jimdaga/food-journal/internal/ai"
	"github.com/jimdaga/food-journal/internal/auth"
	"github.com/jimdaga/food-journal/internal/catalog"
	"github.com/jimdaga/food-journal/internal/config"
	"github.com/jimdaga/food-journal/internal/database"
	"github.com/jimdaga/food-journal/internal/feedback"
	"github.com/jimdaga/food-journal/internal/health"
	"github.com/jimdaga/food-journal/internal/journal"
	"github.com/jimdaga/food-journal/internal/models"
	"github.com/jimdaga/food-journal/internal/objectstore"
	"github.com/jimdaga/food-journal/internal/pipeline"
	"github.com/jimdaga/food-journal/internal/retry"
	"github.com/jimdaga/food-journal/internal/store"
	"github.com/jimdaga/food-journal/internal/streams"
	"github.com/jimdaga/food-journal/internal/tracker"
	"github.com/jimdaga/food-journal/internal/worker"
)

func main() {
	workerOnly := flag.Bool("worker", false, "run only the background worker and scheduler")
	flag.Parse()

	cfg := config.Load()
	cfg.EnforceReprocessWindow(longestRun(cfg))
	logger := worker.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx := context.Background()

	if cfg.MessageEncryptionKey != "" {
		if err := models.InitEncryption(cfg.MessageEncryptionKey); err != nil {
			log.Fatalf("Failed to initialize message encryption: %v", err)
		}
	}

	db, err := database.Init(cfg.DatabaseURL, database.DefaultPool)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	st := store.New(db)

	registry, err := catalog.Init(ctx, st, cfg.CatalogPath)
	if err != nil {
		log.Fatalf("Failed to sync food group catalog: %v", err)
	}

	if cfg.Env == "development" {
		if err := database.SeedDevData(db); err != nil {
			slog.Warn("Failed to seed dev data", "error", err)
		}
	}

	// Job events are optional: without Redis streams the SSE endpoint is disabled
	var events tracker.EventPublisher
	if publisher, err := streams.NewPublisher(cfg.RedisURL); err != nil {
		slog.Warn("Job event publisher disabled", "error", err)
	} else {
		defer publisher.Close()
		events = publisher
	}
	jobs := tracker.New(st, events, cfg.JobPendingTTL)

	extractor, reviewer, images, err := buildAI(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to configure AI providers: %v", err)
	}

	objects, err := buildObjectStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to configure object storage: %v", err)
	}

	if err := worker.InitClient(cfg.RedisURL); err != nil {
		log.Fatalf("Failed to initialize task client: %v", err)
	}
	defer worker.CloseClient()

	queue := worker.Queue{}
	orchestrator := pipeline.New(pipeline.Deps{
		Repo:     st,
		Jobs:     jobs,
		AI:       extractor,
		Images:   images,
		Objects:  objects,
		Catalog:  registry,
		Feedback: queue,
	}, pipeline.Options{
		RefineImagePrompts: cfg.ImagePromptRefinement,
		ItemTimeout:        cfg.ItemTimeout,
	})

	workerDeps := worker.Deps{
		Processor: orchestrator,
		Messages:  st,
		Feedback:  feedback.NewGenerator(st, reviewer),
	}

	stopScheduler, err := worker.StartScheduler(cfg)
	if err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer stopScheduler()

	if *workerOnly {
		slog.Info("Starting in worker mode")
		if err := worker.Run(cfg, workerDeps); err != nil {
			log.Fatalf("Worker stopped: %v", err)
		}
		return
	}

	stopWorker, err := worker.Start(cfg, workerDeps)
	if err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}
	defer stopWorker()

	var follower journal.EventFollower
	if subscriber, err := streams.NewSubscriber(cfg.RedisURL); err != nil {
		slog.Warn("Job event stream disabled", "error", err)
	} else {
		defer subscriber.Close()
		follower = subscriber
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get underlying sql.DB: %v", err)
	}

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/health", gin.WrapF(health.Handler))
	router.GET("/ready", gin.WrapF(health.ReadyHandler(sqlDB)))

	api := router.Group("/", auth.RequireAuth(auth.NewVerifier(cfg.JWTSecret)))
	api.POST("/process-message", journal.ProcessMessageHandler(orchestrator, queue))
	api.GET("/user/job", journal.ListJobsHandler(jobs))
	api.GET("/user/job/events", journal.JobEventsHandler(follower))
	api.GET("/analysis/status", journal.AnalysisStatusHandler(st))
	api.GET("/feedback", journal.FeedbackHandler(st))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
}

// longestRun bounds one pipeline run: extraction under the AI retry policy
// followed by the slowest food item
func longestRun(cfg *config.Config) time.Duration {
	return retry.Default.WithTimeout(cfg.AITimeout).Worst() + cfg.ItemTimeout
}

// extractionClient is what the pipeline and feedback generator need from the LLM
type extractionClient interface {
	pipeline.Extractor
	feedback.Reviewer
}

func buildAI(ctx context.Context, cfg *config.Config) (extractionClient, feedback.Reviewer, ai.ImageGenerator, error) {
	if cfg.AIStubMode {
		stub := &ai.StubClient{Delay: 500 * time.Millisecond}
		return stub, stub, ai.StubImageGenerator{}, nil
	}

	openaiCfg := ai.OpenAIConfig{
		APIKey:        cfg.OpenAIAPIKey,
		BaseURL:       cfg.OpenAIBaseURL,
		Model:         cfg.OpenAIModel,
		FeedbackModel: cfg.FeedbackModel,
		Timeout:       cfg.AITimeout,
		Retry:         retry.Default,
	}
	client := ai.NewClient(openaiCfg)

	var images ai.ImageGenerator
	switch cfg.ImageProvider {
	case "gemini":
		gemini, err := ai.NewGeminiImageGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiImageModel, cfg.ImageTimeout)
		if err != nil {
			return nil, nil, nil, err
		}
		images = gemini
	case "openai":
		images = ai.NewOpenAIImageGenerator(openaiCfg, cfg.OpenAIImageModel, cfg.ImageTimeout)
	case "stub":
		images = ai.StubImageGenerator{}
	default:
		return nil, nil, nil, errors.New("unknown IMAGE_PROVIDER " + cfg.ImageProvider)
	}

	return client, client, images, nil
}

func buildObjectStore(ctx context.Context, cfg *config.Config) (objectstore.Store, error) {
	switch cfg.ObjectStore {
	case "s3":
		return objectstore.NewS3Store(ctx, objectstore.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			Timeout:         cfg.StorageTimeout,
		})
	case "cloudflare":
		return objectstore.NewCloudflareStore(objectstore.CloudflareConfig{
			AccountID: cfg.CloudflareAccountID,
			APIToken:  cfg.CloudflareAPIToken,
			Variant:   cfg.CloudflareVariant,
			BaseURL:   cfg.CloudflareAPIBaseURL,
			Timeout:   cfg.StorageTimeout,
		})
	default:
		return nil, errors.New("unknown OBJECT_STORE " + cfg.ObjectStore)
	}
}

// requestLogger tags each request with an X-Request-ID and logs one line
// per request through slog
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		c.Next()
		slog.Info("Request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"user_id", c.GetString(auth.ContextUserID),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}
