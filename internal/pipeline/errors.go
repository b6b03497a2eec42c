package pipeline

import (
	"errors"

	"github.com/jimdaga/food-journal/internal/store"
)

var (
	// ErrInvalidInput is returned before anything is persisted
	ErrInvalidInput = errors.New("invalid input")

	// ErrPersistence is returned when a required write fails
	ErrPersistence = errors.New("persistence failure")

	// ErrExtraction is returned when food or symptom extraction fails.
	// The message stays unprocessed for the reprocessing sweep.
	ErrExtraction = errors.New("extraction failure")

	// ErrAlreadyProcessed is returned when a message was processed by another run
	ErrAlreadyProcessed = store.ErrAlreadyProcessed
)
