package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jimdaga/food-journal/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateMessage persists a new, unprocessed message
func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	msg.IsProcessed = false
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetMessage loads a message by id. Content is decrypted by the model hook.
func (s *Store) GetMessage(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	if err := s.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, wrapNotFound(err, "message")
	}
	return &msg, nil
}

// MarkMessageProcessed flips is_processed from false to true. The flip
// happens at most once; a second call returns ErrAlreadyProcessed.
func (s *Store) MarkMessageProcessed(ctx context.Context, id uint) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND is_processed = ?", id, false).
		Updates(map[string]interface{}{
			"is_processed": true,
			"processed_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark message processed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

// RecordAttempt increments the processing attempt counter of a message
func (s *Store) RecordAttempt(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Update("attempts", gorm.Expr("attempts + 1")).Error
}

// SaveExtraction stores the raw extraction output on the message
func (s *Store) SaveExtraction(ctx context.Context, id uint, extraction []byte) error {
	return s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Update("extraction", datatypes.JSON(extraction)).Error
}

// ListStaleUnprocessed returns unprocessed messages created before the
// cutoff that have been attempted fewer than maxAttempts times, oldest first.
func (s *Store) ListStaleUnprocessed(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("is_processed = ? AND created_at < ? AND attempts < ?", false, cutoff, maxAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed messages: %w", err)
	}
	return msgs, nil
}

// HasUnprocessedMessages reports whether the user has any message still waiting
func (s *Store) HasUnprocessedMessages(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("user_id = ? AND is_processed = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count unprocessed messages: %w", err)
	}
	return count > 0, nil
}

// ClearDerived removes what an earlier, unfinished attempt derived from a
// message: food entries are soft-deleted, symptoms are deleted.
func (s *Store) ClearDerived(ctx context.Context, messageID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", messageID).Delete(&models.FoodEntry{}).Error; err != nil {
			return fmt.Errorf("failed to clear food entries: %w", err)
		}
		if err := tx.Where("message_id = ?", messageID).Delete(&models.Symptom{}).Error; err != nil {
			return fmt.Errorf("failed to clear symptoms: %w", err)
		}
		return nil
	})
}
