// Package ai wraps the LLM and image providers behind small typed calls.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/jimdaga/food-journal/internal/retry"
)

// ServingEstimate is one food group detected in a food with its servings
type ServingEstimate struct {
	FoodGroup string  `json:"foodGroup"`
	Servings  float64 `json:"servings"`
}

type foodsResult struct {
	Foods []string `json:"foods"`
}

type symptomsResult struct {
	Symptoms []string `json:"symptoms"`
}

type servingsResult struct {
	Servings []ServingEstimate `json:"servings"`
}

// OpenAIConfig configures the chat completion client
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	FeedbackModel string
	Timeout       time.Duration
	Retry         retry.Policy
}

// Client extracts structured facts from journal messages with an
// OpenAI-compatible chat completion API.
type Client struct {
	api           *openai.Client
	model         string
	feedbackModel string
	policy        retry.Policy
}

// NewClient creates a chat client. BaseURL may point at any
// OpenAI-compatible endpoint.
func NewClient(cfg OpenAIConfig) *Client {
	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	apiConfig.HTTPClient = &http.Client{}

	policy := cfg.Retry
	if cfg.Timeout > 0 {
		policy = policy.WithTimeout(cfg.Timeout)
	}

	feedbackModel := cfg.FeedbackModel
	if feedbackModel == "" {
		feedbackModel = cfg.Model
	}

	return &Client{
		api:           openai.NewClientWithConfig(apiConfig),
		model:         cfg.Model,
		feedbackModel: feedbackModel,
		policy:        policy,
	}
}

// ExtractFoods returns the foods and drinks mentioned in message, one entry
// per consumed item, in the order the model lists them.
func (c *Client) ExtractFoods(ctx context.Context, message string) ([]string, error) {
	var out foodsResult
	if err := c.structured(ctx, "extract_foods", foodsSchema, foodsPrompt(message), "", &out); err != nil {
		return nil, err
	}
	return trimAll(out.Foods), nil
}

// ExtractSymptoms returns the physical, mental or emotional symptoms in message
func (c *Client) ExtractSymptoms(ctx context.Context, message string) ([]string, error) {
	var out symptomsResult
	if err := c.structured(ctx, "extract_symptoms", symptomsSchema, extractSymptomsPrompt, message, &out); err != nil {
		return nil, err
	}
	return trimAll(out.Symptoms), nil
}

// ExtractServings classifies a single food into catalog food groups
func (c *Client) ExtractServings(ctx context.Context, food string, foodGroups []string) ([]ServingEstimate, error) {
	var out servingsResult
	if err := c.structured(ctx, "extract_servings", servingsSchema, servingsPrompt(foodGroups), food, &out); err != nil {
		return nil, err
	}
	return out.Servings, nil
}

// RefineImagePrompt turns a food description into a photography prompt
func (c *Client) RefineImagePrompt(ctx context.Context, food string) (string, error) {
	text, err := c.complete(ctx, "refine_image_prompt", c.model, imagePromptRefinementPrompt, food)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("refine_image_prompt: %w", ErrInvalidOutput)
	}
	return text, nil
}

// Feedback asks for a short critique of the given prompt
func (c *Client) Feedback(ctx context.Context, prompt string) (string, error) {
	text, err := c.complete(ctx, "feedback", c.feedbackModel, "", prompt)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("feedback: %w", ErrInvalidOutput)
	}
	return text, nil
}

// structured runs a schema-constrained completion and decodes the result
// into out. Output that fails validation is retried like a transient error.
func (c *Client) structured(ctx context.Context, op string, schema *Schema, system, user string, out interface{}) error {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	if user != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})
	}

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schema.name,
				Schema: schema.source,
				Strict: true,
			},
		},
	}

	start := time.Now()
	_, err := retry.Do(ctx, c.policy, op, func(ctx context.Context) (struct{}, error) {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return struct{}{}, classify(err)
		}
		if len(resp.Choices) == 0 {
			return struct{}{}, fmt.Errorf("%s: no choices: %w", op, ErrInvalidOutput)
		}
		return struct{}{}, schema.Decode(resp.Choices[0].Message.Content, out)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	slog.Debug("Structured completion finished", "op", op, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

func (c *Client) complete(ctx context.Context, op, model, system, user string) (string, error) {
	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	text, err := retry.Do(ctx, c.policy, op, func(ctx context.Context) (string, error) {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    model,
			Messages: messages,
		})
		if err != nil {
			return "", classify(err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%s: no choices: %w", op, ErrInvalidOutput)
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return text, nil
}

// classify marks client errors other than rate limiting as permanent
func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
		return retry.Permanent(err)
	}
	return err
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
