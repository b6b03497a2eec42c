package store

import (
	"context"
	"fmt"
	"math"

	"github.com/jimdaga/food-journal/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateFoodEntry persists a food entry
func (s *Store) CreateFoodEntry(ctx context.Context, entry *models.FoodEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create food entry: %w", err)
	}
	return nil
}

// FindCachedImage returns the image reference of the newest live food entry
// whose normalized description equals key and that has an image.
func (s *Store) FindCachedImage(ctx context.Context, key string) (string, bool, error) {
	var entry models.FoodEntry
	result := s.db.WithContext(ctx).
		Where("description_key = ? AND image_url IS NOT NULL AND image_url <> ''", key).
		Order("created_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&entry)
	if result.Error != nil {
		return "", false, fmt.Errorf("failed to look up cached image: %w", result.Error)
	}
	if result.RowsAffected == 0 || entry.ImageURL == nil {
		return "", false, nil
	}
	return *entry.ImageURL, true, nil
}

// ListFoodForDate returns the user's live food entries for a logical date
func (s *Store) ListFoodForDate(ctx context.Context, userID, logicalDate string) ([]models.FoodEntry, error) {
	var entries []models.FoodEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND logical_date = ?", userID, logicalDate).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list food entries: %w", err)
	}
	return entries, nil
}

// NormalizeServings clamps a classified serving count to a non-negative
// quarter increment. NaN and infinities become zero.
func NormalizeServings(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return math.Max(0, math.Round(value*4)/4)
}

// UpsertServing writes the serving count for a (food, food group) pair.
// An existing row is updated in place; a zero count never creates a row.
// Returns nil when nothing was written.
func (s *Store) UpsertServing(ctx context.Context, userID string, foodID, foodGroupID uint, servings float64) (*models.Serving, error) {
	normalized := NormalizeServings(servings)
	db := s.db.WithContext(ctx)

	if normalized == 0 {
		result := db.Model(&models.Serving{}).
			Where("food_id = ? AND food_group_id = ?", foodID, foodGroupID).
			Update("servings", 0)
		if result.Error != nil {
			return nil, fmt.Errorf("failed to zero serving: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, nil
		}
	} else {
		serving := models.Serving{
			UserID:      userID,
			FoodID:      foodID,
			FoodGroupID: foodGroupID,
			Servings:    normalized,
		}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "food_id"}, {Name: "food_group_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"servings", "updated_at"}),
		}).Create(&serving).Error
		if err != nil {
			return nil, fmt.Errorf("failed to upsert serving: %w", err)
		}
	}

	var stored models.Serving
	if err := db.Where("food_id = ? AND food_group_id = ?", foodID, foodGroupID).First(&stored).Error; err != nil {
		return nil, wrapNotFound(err, "serving")
	}
	return &stored, nil
}

// ListServings returns the serving rows of a food entry
func (s *Store) ListServings(ctx context.Context, foodID uint) ([]models.Serving, error) {
	var servings []models.Serving
	if err := s.db.WithContext(ctx).Where("food_id = ?", foodID).Order("food_group_id").Find(&servings).Error; err != nil {
		return nil, fmt.Errorf("failed to list servings: %w", err)
	}
	return servings, nil
}

// CreateSymptoms inserts all symptoms in one batch write
func (s *Store) CreateSymptoms(ctx context.Context, symptoms []models.Symptom) error {
	if len(symptoms) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&symptoms).Error; err != nil {
		return fmt.Errorf("failed to create symptoms: %w", err)
	}
	return nil
}

// ListFoodGroups returns the catalog ordered by name
func (s *Store) ListFoodGroups(ctx context.Context) ([]models.FoodGroup, error) {
	var groups []models.FoodGroup
	if err := s.db.WithContext(ctx).Order("name").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("failed to list food groups: %w", err)
	}
	return groups, nil
}

// UpsertFoodGroup creates a food group or refreshes the one with the same name
func (s *Store) UpsertFoodGroup(ctx context.Context, group *models.FoodGroup) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "essential", "updated_at"}),
	}).Create(group).Error
	if err != nil {
		return fmt.Errorf("failed to upsert food group %s: %w", group.Name, err)
	}

	// the conflict path does not always return the id
	return s.db.WithContext(ctx).Where("name = ?", group.Name).First(group).Error
}

// DiscardRun removes the rows written by a run that lost the race to mark
// its message processed.
func (s *Store) DiscardRun(ctx context.Context, foodIDs, symptomIDs []uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(foodIDs) > 0 {
			if err := tx.Delete(&models.FoodEntry{}, foodIDs).Error; err != nil {
				return fmt.Errorf("failed to discard food entries: %w", err)
			}
		}
		if len(symptomIDs) > 0 {
			if err := tx.Delete(&models.Symptom{}, symptomIDs).Error; err != nil {
				return fmt.Errorf("failed to discard symptoms: %w", err)
			}
		}
		return nil
	})
}
