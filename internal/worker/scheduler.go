package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/jimdaga/food-journal/internal/config"
)

// StartScheduler registers the periodic reprocessing sweep and starts the
// Asynq Scheduler. Returns a stop function for graceful shutdown.
func StartScheduler(cfg *config.Config) (stop func(), err error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	location, err := time.LoadLocation(cfg.ReprocessTimezone)
	if err != nil {
		slog.Warn("Invalid timezone, using UTC", "timezone", cfg.ReprocessTimezone, "error", err)
		location = time.UTC
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: location,
			LogLevel: asynq.InfoLevel,
			Logger:   &asynqLoggerAdapter{logger: logger},
		},
	)

	task := asynq.NewTask(
		TaskReprocessSweep,
		nil, // handler queries all stale messages
		asynq.MaxRetry(1),
		asynq.Timeout(5*time.Minute),
		asynq.Unique(5*time.Minute), // Prevent overlap if the scheduler runs twice
	)

	entryID, err := scheduler.Register(cfg.ReprocessSchedule, task)
	if err != nil {
		return nil, fmt.Errorf("failed to register reprocess schedule: %w", err)
	}

	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	slog.Info(
		"Scheduler started",
		"schedule", cfg.ReprocessSchedule,
		"timezone", cfg.ReprocessTimezone,
		"entry_id", entryID,
	)

	return func() { scheduler.Shutdown() }, nil
}
