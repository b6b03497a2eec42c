package models

import (
	"time"

	"gorm.io/gorm"
)

// FoodEntry is one food or drink item extracted from a message.
// DeletedAt gives soft deletion; entries are never hard-deleted.
type FoodEntry struct {
	ID             uint    `gorm:"primaryKey"`
	UserID         string  `gorm:"not null;index:idx_food_entries_user_date,priority:1"`
	MessageID      *uint   `gorm:"index"`
	LogicalDate    string  `gorm:"not null;index:idx_food_entries_user_date,priority:2"`
	Description    string  `gorm:"type:text;not null"`
	DescriptionKey string  `gorm:"not null;index"` // normalized description, image cache key
	ImagePrompt    *string `gorm:"type:text"`
	ImageURL       *string `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`

	Servings []Serving `gorm:"foreignKey:FoodID;constraint:OnDelete:CASCADE;"`
}

// Serving quantifies how much one food entry contributes to one food group
type Serving struct {
	ID          uint    `gorm:"primaryKey"`
	UserID      string  `gorm:"not null;index"`
	FoodID      uint    `gorm:"not null;uniqueIndex:idx_servings_food_group,priority:1"`
	FoodGroupID uint    `gorm:"not null;uniqueIndex:idx_servings_food_group,priority:2"`
	Servings    float64 `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Symptom is a physical, mental or emotional observation from a message
type Symptom struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      string `gorm:"not null;index:idx_symptoms_user_date,priority:1"`
	MessageID   *uint  `gorm:"index"`
	LogicalDate string `gorm:"not null;index:idx_symptoms_user_date,priority:2"`
	Description string `gorm:"type:text;not null"`
	CreatedAt   time.Time
}

// FoodGroup is a nutrition category from the catalog
type FoodGroup struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex;not null"`
	Description string `gorm:"type:text"`
	Essential   bool   `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
