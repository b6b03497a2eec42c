// Package feedback writes a short daily review of what a user ate.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jimdaga/food-journal/internal/ai"
	"github.com/jimdaga/food-journal/internal/models"
)

// ErrNoFoods is returned when the day has nothing to review
var ErrNoFoods = errors.New("no food logged for date")

// Repository is the persistence the generator needs
type Repository interface {
	ListFoodForDate(ctx context.Context, userID, logicalDate string) ([]models.FoodEntry, error)
	CreateFeedback(ctx context.Context, fb *models.Feedback) error
}

// Reviewer produces the feedback text for a prompt
type Reviewer interface {
	Feedback(ctx context.Context, prompt string) (string, error)
}

// Generator builds and stores feedback for one user and logical date
type Generator struct {
	repo     Repository
	reviewer Reviewer
}

// NewGenerator creates a Generator
func NewGenerator(repo Repository, reviewer Reviewer) *Generator {
	return &Generator{repo: repo, reviewer: reviewer}
}

// Generate reviews the day's food entries and stores the result
func (g *Generator) Generate(ctx context.Context, userID, logicalDate string) (*models.Feedback, error) {
	entries, err := g.repo.ListFoodForDate(ctx, userID, logicalDate)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoFoods
	}

	foods := make([]string, 0, len(entries))
	for _, e := range entries {
		foods = append(foods, e.Description)
	}

	content, err := g.reviewer.Feedback(ctx, ai.FeedbackPrompt(foods))
	if err != nil {
		return nil, fmt.Errorf("failed to generate feedback: %w", err)
	}

	fb := &models.Feedback{
		UserID:      userID,
		LogicalDate: logicalDate,
		Content:     content,
	}
	if err := g.repo.CreateFeedback(ctx, fb); err != nil {
		return nil, err
	}

	slog.Info("Feedback generated", "user_id", userID, "logical_date", logicalDate, "foods", len(foods))
	return fb, nil
}
