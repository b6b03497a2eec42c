// Package tracker records processing jobs so clients can show which
// messages are still being analyzed.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jimdaga/food-journal/internal/models"
	"github.com/jimdaga/food-journal/internal/store"
	"github.com/jimdaga/food-journal/internal/streams"
)

// DefaultPendingTTL hides pending jobs older than this from pending queries
const DefaultPendingTTL = 2 * time.Minute

// Repository is the persistence the tracker needs
type Repository interface {
	CreateJob(ctx context.Context, job *models.Job) error
	AttachJobMessage(ctx context.Context, jobID, messageID uint) error
	CompleteJob(ctx context.Context, id uint, at time.Time) error
	GetJob(ctx context.Context, id uint) (*models.Job, error)
	ListJobs(ctx context.Context, userID string, filter store.JobFilter) ([]models.Job, error)
}

// EventPublisher receives job lifecycle events. May be nil.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, event streams.JobEvent) (string, error)
}

// Filter selects jobs for ListRecent
type Filter struct {
	PendingOnly bool
	Limit       int
}

// Tracker starts and completes jobs
type Tracker struct {
	repo       Repository
	publisher  EventPublisher
	pendingTTL time.Duration
	now        func() time.Time
}

// New creates a Tracker. A zero pendingTTL uses DefaultPendingTTL.
func New(repo Repository, publisher EventPublisher, pendingTTL time.Duration) *Tracker {
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingTTL
	}
	return &Tracker{
		repo:       repo,
		publisher:  publisher,
		pendingTTL: pendingTTL,
		now:        time.Now,
	}
}

// Start persists a started job
func (t *Tracker) Start(ctx context.Context, userID, description string) (*models.Job, error) {
	job := &models.Job{
		UserID:      userID,
		Description: description,
		StartedAt:   t.now(),
	}
	if err := t.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	t.publish(ctx, streams.EventJobStarted, job)
	return job, nil
}

// Attach links a job to the message it processes
func (t *Tracker) Attach(ctx context.Context, jobID, messageID uint) error {
	return t.repo.AttachJobMessage(ctx, jobID, messageID)
}

// Complete sets the job's completion time. Completing twice is a no-op.
func (t *Tracker) Complete(ctx context.Context, jobID uint) error {
	err := t.repo.CompleteJob(ctx, jobID, t.now())
	if errors.Is(err, store.ErrAlreadyCompleted) {
		return nil
	}
	if err != nil {
		return err
	}

	job, err := t.repo.GetJob(ctx, jobID)
	if err != nil {
		slog.Warn("Completed job could not be reloaded", "job_id", jobID, "error", err)
		return nil
	}
	t.publish(ctx, streams.EventJobCompleted, job)
	return nil
}

// ListRecent returns the user's jobs newest first. Pending queries only
// include jobs started within the pending TTL.
func (t *Tracker) ListRecent(ctx context.Context, userID string, filter Filter) ([]models.Job, error) {
	query := store.JobFilter{PendingOnly: filter.PendingOnly, Limit: filter.Limit}
	if filter.PendingOnly {
		query.StartedAfter = t.now().Add(-t.pendingTTL)
	}
	return t.repo.ListJobs(ctx, userID, query)
}

func (t *Tracker) publish(ctx context.Context, eventType string, job *models.Job) {
	if t.publisher == nil {
		return
	}
	event := streams.JobEvent{
		Type:        eventType,
		JobID:       job.ID,
		UserID:      job.UserID,
		MessageID:   job.MessageID,
		Description: job.Description,
		At:          t.now(),
	}
	if _, err := t.publisher.PublishJobEvent(ctx, event); err != nil {
		slog.Warn("Failed to publish job event", "job_id", job.ID, "type", eventType, "error", err)
	}
}
