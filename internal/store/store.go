// Package store is the GORM-backed persistence layer for journal records.
package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyProcessed is returned when a message was already marked processed
	ErrAlreadyProcessed = errors.New("message already processed")

	// ErrAlreadyCompleted is returned when a job already has a completion time
	ErrAlreadyCompleted = errors.New("job already completed")
)

// Store wraps a GORM connection with typed journal operations
type Store struct {
	db *gorm.DB
}

// New creates a Store on top of an open GORM connection
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for callers that need raw access
func (s *Store) DB() *gorm.DB {
	return s.db
}

func wrapNotFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}
