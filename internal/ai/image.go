package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/jimdaga/food-journal/internal/retry"
)

// ErrNoImage is returned when a provider answers without image bytes
var ErrNoImage = errors.New("provider returned no image")

// ImageGenerator renders an image for a prompt and returns the encoded bytes
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// GeminiImageGenerator generates images with a Gemini image model
type GeminiImageGenerator struct {
	client *genai.Client
	model  string
	policy retry.Policy
}

// NewGeminiImageGenerator creates a generator backed by the Gemini API
func NewGeminiImageGenerator(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiImageGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiImageGenerator{
		client: client,
		model:  model,
		policy: retry.Default.WithTimeout(timeout),
	}, nil
}

// GenerateImage returns the first inline image part of the response
func (g *GeminiImageGenerator) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	return retry.Do(ctx, g.policy, "gemini_image", func(ctx context.Context) ([]byte, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
		if err != nil {
			return nil, err
		}
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					return part.InlineData.Data, nil
				}
			}
		}
		return nil, ErrNoImage
	})
}

// OpenAIImageGenerator generates images with the OpenAI images endpoint
type OpenAIImageGenerator struct {
	api    *openai.Client
	model  string
	policy retry.Policy
}

// NewOpenAIImageGenerator creates a generator for gpt-image style models
func NewOpenAIImageGenerator(cfg OpenAIConfig, model string, timeout time.Duration) *OpenAIImageGenerator {
	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	apiConfig.HTTPClient = &http.Client{}

	return &OpenAIImageGenerator{
		api:    openai.NewClientWithConfig(apiConfig),
		model:  model,
		policy: cfg.Retry.WithTimeout(timeout),
	}
}

// GenerateImage returns decoded base64 image bytes
func (g *OpenAIImageGenerator) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	return retry.Do(ctx, g.policy, "openai_image", func(ctx context.Context) ([]byte, error) {
		resp, err := g.api.CreateImage(ctx, openai.ImageRequest{
			Prompt: prompt,
			Model:  g.model,
			N:      1,
			Size:   openai.CreateImageSize1024x1024,
		})
		if err != nil {
			return nil, classify(err)
		}
		if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
			return nil, ErrNoImage
		}
		data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("invalid image payload: %w", err))
		}
		return data, nil
	})
}
