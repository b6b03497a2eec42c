package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Message is one free-text journal submission by a user
type Message struct {
	ID          uint           `gorm:"primaryKey"`
	UserID      string         `gorm:"not null;index:idx_messages_user_date,priority:1"`
	LogicalDate string         `gorm:"not null;index:idx_messages_user_date,priority:2"`
	Content     string         `gorm:"type:text;not null"` // stored encrypted when encryption is initialized
	Role        string         `gorm:"not null;default:'user'"`
	IsProcessed bool           `gorm:"not null;default:false;index"`
	Attempts    int            `gorm:"not null;default:0"`
	Extraction  datatypes.JSON // last extraction output, for auditing
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BeforeSave encrypts the message content before it is written.
func (m *Message) BeforeSave(tx *gorm.DB) error {
	if encryptor == nil || m.Content == "" {
		return nil
	}

	encrypted, err := encryptor.Encrypt(m.Content)
	if err != nil {
		return err
	}
	m.Content = encrypted
	return nil
}

// AfterSave restores the plaintext on the in-memory value
func (m *Message) AfterSave(tx *gorm.DB) error {
	return m.AfterFind(tx)
}

// AfterFind decrypts the message content after loading from database
func (m *Message) AfterFind(tx *gorm.DB) error {
	if encryptor == nil || m.Content == "" {
		return nil
	}

	decrypted, err := encryptor.Decrypt(m.Content)
	if err != nil {
		return err
	}
	m.Content = decrypted
	return nil
}
