package database

import (
	"log/slog"
	"time"

	"github.com/jimdaga/food-journal/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DevUserID owns the development seed data
const DevUserID = "dev-user-00000000"

// SeedDevData populates the database with one processed day for the dev
// user. Idempotent: skips if the dev user already has messages. Food
// groups must be synced first; unknown groups are skipped.
func SeedDevData(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Message{}).Where("user_id = ?", DevUserID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		slog.Info("Seed data already exists, skipping")
		return nil
	}

	date := time.Now().UTC().Format("2006-01-02")
	now := time.Now()

	return db.Transaction(func(tx *gorm.DB) error {
		msg := models.Message{
			UserID:      DevUserID,
			LogicalDate: date,
			Content:     "1 bowl of oatmeal with blueberries and a cup of black coffee. Slight headache.",
			Role:        "user",
			Attempts:    1,
			Extraction:  datatypes.JSON([]byte(`{"foods":["1 bowl of oatmeal with blueberries","1 cup of black coffee"],"symptoms":["slight headache"]}`)),
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}

		job := models.Job{
			UserID:      DevUserID,
			MessageID:   &msg.ID,
			Description: "Processing message",
			StartedAt:   now.Add(-time.Minute),
			CompletedAt: &now,
		}
		if err := tx.Create(&job).Error; err != nil {
			return err
		}

		foods := []struct {
			description string
			groups      map[string]float64
		}{
			{"1 bowl of oatmeal with blueberries", map[string]float64{"Grains": 1, "Fruits": 0.5}},
			{"1 cup of black coffee", map[string]float64{"Water": 1}},
		}
		for _, f := range foods {
			entry := models.FoodEntry{
				UserID:         DevUserID,
				MessageID:      &msg.ID,
				LogicalDate:    date,
				Description:    f.description,
				DescriptionKey: f.description,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			for name, servings := range f.groups {
				var group models.FoodGroup
				if err := tx.Where("name = ?", name).First(&group).Error; err != nil {
					slog.Warn("Seed food group missing, skipping serving", "food_group", name)
					continue
				}
				serving := models.Serving{UserID: DevUserID, FoodID: entry.ID, FoodGroupID: group.ID, Servings: servings}
				if err := tx.Create(&serving).Error; err != nil {
					return err
				}
			}
		}

		symptom := models.Symptom{UserID: DevUserID, MessageID: &msg.ID, LogicalDate: date, Description: "slight headache"}
		if err := tx.Create(&symptom).Error; err != nil {
			return err
		}

		fb := models.Feedback{
			UserID:      DevUserID,
			LogicalDate: date,
			Content:     "Oatmeal with fruit is a great fiber-rich start. Add a protein source and drink some water alongside the coffee.",
		}
		if err := tx.Create(&fb).Error; err != nil {
			return err
		}

		if err := tx.Model(&msg).Updates(map[string]interface{}{"is_processed": true, "processed_at": now}).Error; err != nil {
			return err
		}

		slog.Info("Seeded dev data", "user_id", DevUserID, "logical_date", date, "foods", len(foods))
		return nil
	})
}
