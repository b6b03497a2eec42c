// Package objectstore uploads generated food images and returns a public
// reference to them.
package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// ContentTypePNG is the content type of every generated image
const ContentTypePNG = "image/png"

// Store writes bytes under a key. Writing the same key twice replaces the
// object, so a retried upload is safe.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// maxSlugLen caps the readable part of a food image key
const maxSlugLen = 60

// FoodImageKey derives the object key for a food description: a readable
// slug followed by a hash of the normalized description, e.g.
// "1 Cup of Black Coffee" -> "food/food-1-cup-of-black-coffee-<hash>.png".
// Descriptions that normalize differently never share a key, even when
// their slugs are equal.
func FoodImageKey(description string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(description)), " ")

	var b strings.Builder
	dash := false
	for _, r := range normalized {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := []rune(b.String())
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	name := strings.Trim(string(slug), "-")
	if name == "" {
		name = "unnamed"
	}

	sum := sha256.Sum256([]byte(normalized))
	return "food/food-" + name + "-" + hex.EncodeToString(sum[:])[:12] + ".png"
}
