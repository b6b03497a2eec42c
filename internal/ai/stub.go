package ai

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"time"
)

// StubClient answers extraction calls with canned data for local development.
// Foods are split on commas and " and "; a message mentioning "headache",
// "tired" or "nausea" yields that symptom.
type StubClient struct {
	Delay time.Duration
}

var stubSymptoms = []string{"headache", "tired", "nausea", "bloated", "stomach ache"}

func (s *StubClient) wait(ctx context.Context) error {
	if s.Delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.Delay):
		return nil
	}
}

// ExtractFoods splits the message into items, skipping symptom phrases
func (s *StubClient) ExtractFoods(ctx context.Context, message string) ([]string, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	var foods []string
	for _, part := range strings.FieldsFunc(strings.ReplaceAll(message, " and ", ","), func(r rune) bool {
		return r == ',' || r == '.' || r == ';'
	}) {
		part = strings.TrimSpace(part)
		if part == "" || containsSymptom(part) {
			continue
		}
		foods = append(foods, part)
	}
	return foods, nil
}

// ExtractSymptoms returns known symptom words found in the message
func (s *StubClient) ExtractSymptoms(ctx context.Context, message string) ([]string, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	lower := strings.ToLower(message)
	var symptoms []string
	for _, symptom := range stubSymptoms {
		if strings.Contains(lower, symptom) {
			symptoms = append(symptoms, symptom)
		}
	}
	return symptoms, nil
}

// ExtractServings assigns one serving of the first catalog group
func (s *StubClient) ExtractServings(ctx context.Context, food string, foodGroups []string) ([]ServingEstimate, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if len(foodGroups) == 0 {
		return nil, nil
	}
	return []ServingEstimate{{FoodGroup: foodGroups[0], Servings: 1}}, nil
}

// RefineImagePrompt returns the default prompt
func (s *StubClient) RefineImagePrompt(ctx context.Context, food string) (string, error) {
	return DefaultImagePrompt(food), nil
}

// Feedback returns a fixed two-sentence critique
func (s *StubClient) Feedback(ctx context.Context, prompt string) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	return "Nice job logging your meals today. Try adding another serving of vegetables tomorrow.", nil
}

// StubImageGenerator renders a small solid-color PNG derived from the prompt
type StubImageGenerator struct{}

// GenerateImage encodes a 16x16 PNG
func (StubImageGenerator) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sum byte
	for i := 0; i < len(prompt); i++ {
		sum += prompt[i]
	}
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	fill := color.RGBA{R: sum, G: 255 - sum, B: 128, A: 255}
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func containsSymptom(text string) bool {
	lower := strings.ToLower(text)
	for _, symptom := range stubSymptoms {
		if strings.Contains(lower, symptom) {
			return true
		}
	}
	return false
}
