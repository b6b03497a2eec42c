package store

import (
	"context"
	"fmt"

	"github.com/jimdaga/food-journal/internal/models"
)

// CreateFeedback persists a generated feedback entry
func (s *Store) CreateFeedback(ctx context.Context, fb *models.Feedback) error {
	if err := s.db.WithContext(ctx).Create(fb).Error; err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

// LatestFeedback returns the newest feedback for the user's logical date
func (s *Store) LatestFeedback(ctx context.Context, userID, logicalDate string) (*models.Feedback, error) {
	var fb models.Feedback
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND logical_date = ?", userID, logicalDate).
		Order("created_at DESC").
		Order("id DESC").
		First(&fb).Error
	if err != nil {
		return nil, wrapNotFound(err, "feedback")
	}
	return &fb, nil
}
