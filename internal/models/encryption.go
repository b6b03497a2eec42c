package models

import (
	"github.com/jimdaga/food-journal/internal/crypto"
)

var encryptor *crypto.FieldEncryptor

// InitEncryption initializes the field encryptor for the models package.
// Must be called before any database operations involving Message when
// encryption at rest is wanted; without it content is stored as-is.
func InitEncryption(encryptionKey string) error {
	var err error
	encryptor, err = crypto.NewFieldEncryptor(encryptionKey)
	return err
}

// ResetEncryption disables content encryption
func ResetEncryption() {
	encryptor = nil
}
