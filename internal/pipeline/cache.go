package pipeline

import (
	"context"
	"log/slog"
	"strings"
)

// NormalizeDescription is the image cache key of a food description:
// lowercased with whitespace runs collapsed to one space.
func NormalizeDescription(description string) string {
	return strings.Join(strings.Fields(strings.ToLower(description)), " ")
}

// CacheRepository finds stored image references by normalized description
type CacheRepository interface {
	FindCachedImage(ctx context.Context, key string) (string, bool, error)
}

// ImageCache is a read-through lookup over existing food entries. Entries
// are shared across users; only the image reference is reused.
type ImageCache struct {
	repo CacheRepository
}

// NewImageCache creates an ImageCache
func NewImageCache(repo CacheRepository) *ImageCache {
	return &ImageCache{repo: repo}
}

// Lookup returns the newest image reference for description. Errors count
// as a miss.
func (c *ImageCache) Lookup(ctx context.Context, description string) (string, bool) {
	ref, ok, err := c.repo.FindCachedImage(ctx, NormalizeDescription(description))
	if err != nil {
		slog.Warn("Image cache lookup failed", "food", description, "error", err)
		return "", false
	}
	return ref, ok
}
