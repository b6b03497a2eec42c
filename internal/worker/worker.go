package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/jimdaga/food-journal/internal/config"
	"github.com/jimdaga/food-journal/internal/feedback"
	"github.com/jimdaga/food-journal/internal/models"
	"github.com/jimdaga/food-journal/internal/pipeline"
	"github.com/jimdaga/food-journal/internal/store"
)

// asynqLoggerAdapter wraps slog.Logger to implement asynq.Logger interface
type asynqLoggerAdapter struct {
	logger *slog.Logger
}

// Implement asynq.Logger interface methods
func (a *asynqLoggerAdapter) Debug(args ...interface{}) {
	a.logger.Debug(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Info(args ...interface{}) {
	a.logger.Info(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Warn(args ...interface{}) {
	a.logger.Warn(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Error(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}

// MessageProcessor runs the pipeline on a persisted message
type MessageProcessor interface {
	Resume(ctx context.Context, messageID, jobID uint) (*pipeline.Result, error)
}

// StaleMessageLister finds messages the sweep should retry
type StaleMessageLister interface {
	ListStaleUnprocessed(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]models.Message, error)
}

// FeedbackGenerator writes daily feedback
type FeedbackGenerator interface {
	Generate(ctx context.Context, userID, logicalDate string) (*models.Feedback, error)
}

// Deps are the collaborators of the task handlers
type Deps struct {
	Processor MessageProcessor
	Messages  StaleMessageLister
	Feedback  FeedbackGenerator
}

// Run starts the Asynq worker server and blocks until shutdown signal.
// Use this for standalone worker mode.
func Run(cfg *config.Config, deps Deps) error {
	srv, mux, err := newServer(cfg, deps)
	if err != nil {
		return err
	}

	// Note: Scheduler is started separately in main.go worker mode
	// and deferred there for shutdown coordination.
	// Run blocks and handles its own signal interception
	return srv.Run(mux)
}

// Start starts the Asynq worker in non-blocking mode and returns a stop function.
// Use this for embedded mode so the caller can coordinate shutdown.
func Start(cfg *config.Config, deps Deps) (stop func(), err error) {
	srv, mux, err := newServer(cfg, deps)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return func() { srv.Shutdown() }, nil
}

func newServer(cfg *config.Config, deps Deps) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     5,
			ShutdownTimeout: 30 * time.Second,
			ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
			Logger:          &asynqLoggerAdapter{logger: logger},
		},
	)

	sweep := SweepConfig{
		After:       cfg.ReprocessAfter,
		MaxAttempts: cfg.ReprocessMaxAttempts,
		Limit:       100,
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskProcessMessage, handleProcessMessage(logger, deps.Processor))
	mux.HandleFunc(TaskReprocessSweep, handleReprocessSweep(logger, deps.Messages, sweep, EnqueueProcessMessage))
	mux.HandleFunc(TaskGenerateFeedback, handleGenerateFeedback(logger, deps.Feedback))

	logger.Info("Worker starting", "concurrency", 5)
	return srv, mux, nil
}

// handleProcessMessage runs the pipeline for a queued message. Extraction
// failures are retried by asynq; a processed or missing message is not.
func handleProcessMessage(logger *slog.Logger, processor MessageProcessor) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload processMessagePayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.MessageID == 0 {
			// Invalid payload - don't retry
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		logger.Info(
			"Processing message:process task",
			"message_id", payload.MessageID,
			"job_id", payload.JobID,
		)

		result, err := processor.Resume(ctx, payload.MessageID, payload.JobID)
		switch {
		case errors.Is(err, pipeline.ErrAlreadyProcessed):
			logger.Info("Message already processed", "message_id", payload.MessageID)
			return nil
		case errors.Is(err, store.ErrNotFound):
			logger.Error("Message not found", "message_id", payload.MessageID)
			return fmt.Errorf("message not found: %w", asynq.SkipRetry)
		case err != nil:
			return fmt.Errorf("message processing failed: %w", err)
		}

		logger.Info(
			"Message processing completed",
			"message_id", payload.MessageID,
			"job_id", result.JobID,
			"foods", len(result.Foods),
		)
		return nil
	}
}

// SweepConfig bounds the reprocessing sweep
type SweepConfig struct {
	After       time.Duration
	MaxAttempts int
	Limit       int
}

// handleReprocessSweep re-enqueues unprocessed messages left behind by
// failed or crashed runs.
func handleReprocessSweep(logger *slog.Logger, messages StaleMessageLister, cfg SweepConfig, enqueue func(ctx context.Context, messageID, jobID uint) error) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		cutoff := time.Now().Add(-cfg.After)
		stale, err := messages.ListStaleUnprocessed(ctx, cutoff, cfg.MaxAttempts, cfg.Limit)
		if err != nil {
			return fmt.Errorf("failed to list unprocessed messages: %w", err)
		}

		enqueued := 0
		for _, msg := range stale {
			if err := enqueue(ctx, msg.ID, 0); err != nil {
				logger.Error("Failed to enqueue message", "message_id", msg.ID, "error", err)
				continue
			}
			enqueued++
		}

		logger.Info("Reprocess sweep finished", "stale", len(stale), "enqueued", enqueued)
		return nil
	}
}

// handleGenerateFeedback generates and stores feedback for a user's day
func handleGenerateFeedback(logger *slog.Logger, generator FeedbackGenerator) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload feedbackPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.UserID == "" {
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		fb, err := generator.Generate(ctx, payload.UserID, payload.LogicalDate)
		if errors.Is(err, feedback.ErrNoFoods) {
			logger.Info("No food to review", "user_id", payload.UserID, "logical_date", payload.LogicalDate)
			return nil
		}
		if err != nil {
			return fmt.Errorf("feedback generation failed: %w", err)
		}

		logger.Info("Feedback stored", "user_id", payload.UserID, "feedback_id", fb.ID)
		return nil
	}
}

// makeErrorHandler creates an error handler function with logger closure.
func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Error(
			"Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)

		// Check if this is the final failure (task will move to dead letter queue)
		if retried >= maxRetry {
			logger.Error(
				"Task moved to dead letter queue (all retries exhausted)",
				"task_type", task.Type(),
				"payload", string(task.Payload()),
			)
		}
	}
}
