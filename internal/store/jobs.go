package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jimdaga/food-journal/internal/models"
)

// JobFilter narrows ListJobs results
type JobFilter struct {
	// PendingOnly keeps jobs without a completion time
	PendingOnly bool
	// StartedAfter drops jobs started at or before this instant when non-zero
	StartedAfter time.Time
	Limit        int
}

// CreateJob persists a started job
func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	job.CompletedAt = nil
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob loads a job by id
func (s *Store) GetJob(ctx context.Context, id uint) (*models.Job, error) {
	var job models.Job
	if err := s.db.WithContext(ctx).First(&job, id).Error; err != nil {
		return nil, wrapNotFound(err, "job")
	}
	return &job, nil
}

// AttachJobMessage links a job to the message it processes
func (s *Store) AttachJobMessage(ctx context.Context, jobID, messageID uint) error {
	return s.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ?", jobID).
		Update("message_id", messageID).Error
}

// CompleteJob sets completed_at once. A second call returns ErrAlreadyCompleted.
func (s *Store) CompleteJob(ctx context.Context, id uint, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND completed_at IS NULL", id).
		Update("completed_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to complete job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyCompleted
	}
	return nil
}

// ListJobs returns the user's jobs newest first
func (s *Store) ListJobs(ctx context.Context, userID string, filter JobFilter) ([]models.Job, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.PendingOnly {
		query = query.Where("completed_at IS NULL")
	}
	if !filter.StartedAfter.IsZero() {
		query = query.Where("started_at > ?", filter.StartedAfter)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var jobs []models.Job
	if err := query.Order("started_at DESC").Order("id DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}
