package journal

import (
	"time"

	"github.com/jimdaga/food-journal/internal/models"
	"github.com/jimdaga/food-journal/internal/pipeline"
)

type servingResponse struct {
	FoodGroupID uint    `json:"foodGroupId"`
	Servings    float64 `json:"servings"`
}

type foodResponse struct {
	ID          uint              `json:"id"`
	Description string            `json:"description"`
	ImageURL    *string           `json:"imageUrl"`
	Servings    []servingResponse `json:"servings"`
}

type symptomResponse struct {
	ID          uint   `json:"id"`
	Description string `json:"description"`
}

type processResponse struct {
	JobID     uint              `json:"jobId"`
	MessageID uint              `json:"messageId"`
	Foods     []foodResponse    `json:"foods"`
	Symptoms  []symptomResponse `json:"symptoms"`
	Skipped   []string          `json:"skipped"`
}

type jobResponse struct {
	ID          uint       `json:"id"`
	MessageID   *uint      `json:"messageId"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

type feedbackResponse struct {
	ID          uint      `json:"id"`
	LogicalDate string    `json:"logicalDate"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newProcessResponse(r *pipeline.Result) processResponse {
	out := processResponse{
		JobID:     r.JobID,
		MessageID: r.MessageID,
		Foods:     make([]foodResponse, 0, len(r.Foods)),
		Symptoms:  make([]symptomResponse, 0, len(r.Symptoms)),
		Skipped:   r.Skipped,
	}
	if out.Skipped == nil {
		out.Skipped = []string{}
	}
	for _, f := range r.Foods {
		food := foodResponse{
			ID:          f.ID,
			Description: f.Description,
			ImageURL:    f.ImageURL,
			Servings:    make([]servingResponse, 0, len(f.Servings)),
		}
		for _, s := range f.Servings {
			food.Servings = append(food.Servings, servingResponse{FoodGroupID: s.FoodGroupID, Servings: s.Servings})
		}
		out.Foods = append(out.Foods, food)
	}
	for _, s := range r.Symptoms {
		out.Symptoms = append(out.Symptoms, symptomResponse{ID: s.ID, Description: s.Description})
	}
	return out
}

func newJobResponse(j models.Job) jobResponse {
	return jobResponse{
		ID:          j.ID,
		MessageID:   j.MessageID,
		Description: j.Description,
		Status:      j.Status(),
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
