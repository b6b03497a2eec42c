package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TaskProcessMessage   = "message:process"
	TaskReprocessSweep   = "message:reprocess-sweep"
	TaskGenerateFeedback = "feedback:generate"
)

// Package-level Asynq client (singleton)
var client *asynq.Client

// InitClient initializes the global Asynq client for task enqueueing.
// Must be called before any EnqueueX functions.
func InitClient(redisURL string) error {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return err
	}

	client = asynq.NewClient(opt)
	return nil
}

// CloseClient closes the Asynq client connection gracefully.
func CloseClient() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

type processMessagePayload struct {
	MessageID uint `json:"message_id"`
	JobID     uint `json:"job_id"`
}

type feedbackPayload struct {
	UserID      string `json:"user_id"`
	LogicalDate string `json:"logical_date"`
}

// MessageTaskID is the task id of a message's processing task. Asynq
// rejects a second task with the same id while the first is queued,
// retrying or archived.
func MessageTaskID(messageID uint) string {
	return fmt.Sprintf("message:%d", messageID)
}

// NewProcessMessageTask builds the processing task for a persisted message.
// A zero jobID makes the handler start a new job.
func NewProcessMessageTask(messageID, jobID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(processMessagePayload{MessageID: messageID, JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskProcessMessage,
		payload,
		asynq.TaskID(MessageTaskID(messageID)),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
	), nil
}

// EnqueueProcessMessage enqueues processing for a message. A message that
// is already queued is not queued twice.
func EnqueueProcessMessage(ctx context.Context, messageID, jobID uint) error {
	if client == nil {
		return errors.New("asynq client not initialized")
	}
	task, err := NewProcessMessageTask(messageID, jobID)
	if err != nil {
		return err
	}

	_, err = client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// NewGenerateFeedbackTask builds the feedback task for a user's day
func NewGenerateFeedbackTask(userID, logicalDate string) (*asynq.Task, error) {
	payload, err := json.Marshal(feedbackPayload{UserID: userID, LogicalDate: logicalDate})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskGenerateFeedback,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
		asynq.Retention(24*time.Hour),
		asynq.Unique(time.Minute),
	), nil
}

// EnqueueGenerateFeedback enqueues feedback generation for a user's day.
// Requests for the same day within a minute collapse into one.
func EnqueueGenerateFeedback(ctx context.Context, userID, logicalDate string) error {
	if client == nil {
		return errors.New("asynq client not initialized")
	}
	task, err := NewGenerateFeedbackTask(userID, logicalDate)
	if err != nil {
		return err
	}

	_, err = client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// Queue exposes the enqueue functions to the pipeline and HTTP handlers
type Queue struct{}

// ScheduleFeedback enqueues a feedback:generate task
func (Queue) ScheduleFeedback(ctx context.Context, userID, logicalDate string) error {
	return EnqueueGenerateFeedback(ctx, userID, logicalDate)
}

// EnqueueMessage enqueues a message:process task
func (Queue) EnqueueMessage(ctx context.Context, messageID, jobID uint) error {
	return EnqueueProcessMessage(ctx, messageID, jobID)
}
