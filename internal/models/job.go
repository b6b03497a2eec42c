package models

import (
	"time"
)

// Job status values derived from CompletedAt
const (
	JobStatusStarted   = "started"
	JobStatusCompleted = "completed"
)

// Job tracks one processing run so clients can poll for in-flight work
type Job struct {
	ID          uint       `gorm:"primaryKey"`
	UserID      string     `gorm:"not null;index"`
	MessageID   *uint      `gorm:"index"`
	Description string     `gorm:"type:text"`
	StartedAt   time.Time  `gorm:"autoCreateTime;index"`
	CompletedAt *time.Time `gorm:"index"`
}

// Status reports the lifecycle state of the job
func (j Job) Status() string {
	if j.CompletedAt != nil {
		return JobStatusCompleted
	}
	return JobStatusStarted
}

// Feedback is a short natural-language review of a user's day
type Feedback struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      string `gorm:"not null;index:idx_feedback_user_date,priority:1"`
	LogicalDate string `gorm:"not null;index:idx_feedback_user_date,priority:2"`
	Content     string `gorm:"type:text;not null"`
	CreatedAt   time.Time
}

// TableName keeps the singular table name used by existing clients
func (Feedback) TableName() string { return "feedback" }
