package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jimdaga/food-journal/internal/retry"
)

// ErrImageExists is returned by the upload endpoint when the id is taken
var ErrImageExists = errors.New("image id already exists")

// CloudflareConfig configures the Cloudflare Images backend
type CloudflareConfig struct {
	AccountID string
	APIToken  string
	// Variant picks the delivery URL; empty uses the first returned variant
	Variant string
	BaseURL string
	Timeout time.Duration
}

// CloudflareStore uploads objects to Cloudflare Images with the key as the
// custom image id.
type CloudflareStore struct {
	baseURL    string
	accountID  string
	token      string
	variant    string
	httpClient *http.Client
	policy     retry.Policy
}

type cloudflareResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result struct {
		ID       string   `json:"id"`
		Variants []string `json:"variants"`
	} `json:"result"`
}

// NewCloudflareStore creates a Cloudflare Images client
func NewCloudflareStore(cfg CloudflareConfig) (*CloudflareStore, error) {
	if cfg.AccountID == "" || cfg.APIToken == "" {
		return nil, errors.New("cloudflare account id and api token are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CloudflareStore{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		accountID:  cfg.AccountID,
		token:      cfg.APIToken,
		variant:    cfg.Variant,
		httpClient: &http.Client{Timeout: timeout},
		policy:     retry.Default,
	}, nil
}

// Put uploads data under key. An existing image with the same id is deleted
// and uploaded again.
func (c *CloudflareStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return retry.Do(ctx, c.policy, "cloudflare_put", func(ctx context.Context) (string, error) {
		ref, err := c.upload(ctx, key, data)
		if errors.Is(err, ErrImageExists) {
			if err := c.delete(ctx, key); err != nil {
				return "", err
			}
			ref, err = c.upload(ctx, key, data)
		}
		return ref, err
	})
}

func (c *CloudflareStore) imagesURL() string {
	return fmt.Sprintf("%s/accounts/%s/images/v1", c.baseURL, c.accountID)
}

func (c *CloudflareStore) upload(ctx context.Context, key string, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("id", key); err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to write id field: %w", err))
	}
	part, err := writer.CreateFormFile("file", key[strings.LastIndex(key, "/")+1:])
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to create file field: %w", err))
	}
	if _, err := part.Write(data); err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to write file field: %w", err))
	}
	if err := writer.Close(); err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to close multipart body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.imagesURL(), &body)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return "", ErrImageExists
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	var decoded cloudflareResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if !decoded.Success {
		return "", retry.Permanent(fmt.Errorf("cloudflare upload rejected: %v", decoded.Errors))
	}
	return c.pickVariant(decoded.Result.Variants)
}

func (c *CloudflareStore) delete(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.imagesURL()+"/"+url.PathEscape(key), nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return statusError(resp)
	}
	return nil
}

func (c *CloudflareStore) pickVariant(variants []string) (string, error) {
	if len(variants) == 0 {
		return "", retry.Permanent(errors.New("cloudflare returned no variants"))
	}
	if c.variant != "" {
		for _, v := range variants {
			if strings.HasSuffix(v, "/"+c.variant) {
				return v, nil
			}
		}
	}
	return variants[0], nil
}

// statusError reads the body into the error; 4xx other than 429 is permanent
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("cloudflare returned status %d: %s", resp.StatusCode, string(body))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}
