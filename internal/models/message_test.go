package models_test

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/jimdaga/food-journal/internal/crypto"
	"github.com/jimdaga/food-journal/internal/models"
	"github.com/jimdaga/food-journal/internal/testdb"
)

func TestMessageContentEncryptedAtRest(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("m", 32)))
	if err := models.InitEncryption(key); err != nil {
		t.Fatalf("InitEncryption: %v", err)
	}
	t.Cleanup(func() { models.ResetEncryption() })

	db := testdb.Open(t)
	msg := &models.Message{UserID: "user-1", LogicalDate: "2025-01-15", Content: "two eggs and toast"}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if msg.Content != "two eggs and toast" {
		t.Errorf("in-memory content after save = %q", msg.Content)
	}

	var raw string
	if err := db.Raw("SELECT content FROM messages WHERE id = ?", msg.ID).Scan(&raw).Error; err != nil {
		t.Fatalf("raw select: %v", err)
	}
	if !crypto.IsSealed(raw) {
		t.Errorf("stored content is not sealed: %q", raw)
	}

	var loaded models.Message
	if err := db.First(&loaded, msg.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Content != "two eggs and toast" {
		t.Errorf("loaded content = %q", loaded.Content)
	}
}
