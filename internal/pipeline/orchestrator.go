// Package pipeline turns a raw journal message into food entries, servings
// and symptoms.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jimdaga/food-journal/internal/ai"
	"github.com/jimdaga/food-journal/internal/catalog"
	"github.com/jimdaga/food-journal/internal/models"
	"github.com/jimdaga/food-journal/internal/objectstore"
)

// LogicalDateLayout is the format of caller-supplied logical dates
const LogicalDateLayout = "2006-01-02"

// Extractor is the AI capability used by the pipeline
type Extractor interface {
	ExtractFoods(ctx context.Context, message string) ([]string, error)
	ExtractSymptoms(ctx context.Context, message string) ([]string, error)
	ExtractServings(ctx context.Context, food string, foodGroups []string) ([]ai.ServingEstimate, error)
	RefineImagePrompt(ctx context.Context, food string) (string, error)
}

// Repository is the persistence used by the pipeline
type Repository interface {
	CacheRepository
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id uint) (*models.Message, error)
	MarkMessageProcessed(ctx context.Context, id uint) error
	RecordAttempt(ctx context.Context, id uint) error
	SaveExtraction(ctx context.Context, id uint, extraction []byte) error
	ClearDerived(ctx context.Context, messageID uint) error
	DiscardRun(ctx context.Context, foodIDs, symptomIDs []uint) error
	CreateFoodEntry(ctx context.Context, entry *models.FoodEntry) error
	UpsertServing(ctx context.Context, userID string, foodID, foodGroupID uint, servings float64) (*models.Serving, error)
	CreateSymptoms(ctx context.Context, symptoms []models.Symptom) error
}

// JobTracker starts and completes jobs
type JobTracker interface {
	Start(ctx context.Context, userID, description string) (*models.Job, error)
	Attach(ctx context.Context, jobID, messageID uint) error
	Complete(ctx context.Context, jobID uint) error
}

// FeedbackScheduler queues feedback generation for a user's day
type FeedbackScheduler interface {
	ScheduleFeedback(ctx context.Context, userID, logicalDate string) error
}

// Deps are the collaborators of the orchestrator. Feedback may be nil.
type Deps struct {
	Repo     Repository
	Jobs     JobTracker
	AI       Extractor
	Images   ai.ImageGenerator
	Objects  objectstore.Store
	Catalog  *catalog.Registry
	Feedback FeedbackScheduler
}

// Options tune the orchestrator
type Options struct {
	// RefineImagePrompts asks the LLM for a photography prompt before generating
	RefineImagePrompts bool
	// ItemTimeout bounds one food pipeline; zero means 3 minutes
	ItemTimeout time.Duration
}

// Orchestrator runs the message processing pipeline
type Orchestrator struct {
	deps  Deps
	cache *ImageCache
	opts  Options
}

// Submission identifies an accepted message and the job tracking it
type Submission struct {
	JobID     uint
	MessageID uint
}

// Result is what one run derived from a message, in extraction order.
// Skipped foods are absent from Foods.
type Result struct {
	Submission
	Foods    []models.FoodEntry
	Symptoms []models.Symptom
	Skipped  []string
}

// extraction is stored on the message for debugging reprocessing
type extraction struct {
	Foods    []string `json:"foods"`
	Symptoms []string `json:"symptoms"`
}

// New creates an Orchestrator
func New(deps Deps, opts Options) *Orchestrator {
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = 3 * time.Minute
	}
	return &Orchestrator{
		deps:  deps,
		cache: NewImageCache(deps.Repo),
		opts:  opts,
	}
}

// ProcessMessage accepts a message and runs the whole pipeline on it.
// Cancelling ctx does not stop a submitted message; the run ends in
// completion or failure, bounded by the per-call and per-item timeouts.
func (o *Orchestrator) ProcessMessage(ctx context.Context, userID, logicalDate, rawText string) (*Result, error) {
	ctx = context.WithoutCancel(ctx)

	sub, err := o.Accept(ctx, userID, logicalDate, rawText)
	if err != nil {
		return nil, err
	}
	return o.Resume(ctx, sub.MessageID, sub.JobID)
}

// Accept validates input, starts a job and persists the unprocessed
// message. No external capability is called.
func (o *Orchestrator) Accept(ctx context.Context, userID, logicalDate, rawText string) (*Submission, error) {
	if err := validateInput(userID, logicalDate, rawText); err != nil {
		return nil, err
	}

	job, err := o.deps.Jobs.Start(ctx, userID, "Processing message")
	if err != nil {
		return nil, fmt.Errorf("start job: %v: %w", err, ErrPersistence)
	}

	msg := &models.Message{
		UserID:      userID,
		LogicalDate: logicalDate,
		Content:     rawText,
		Role:        "user",
	}
	if err := o.deps.Repo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %v: %w", err, ErrPersistence)
	}

	if err := o.deps.Jobs.Attach(ctx, job.ID, msg.ID); err != nil {
		slog.Warn("Failed to attach job to message", "job_id", job.ID, "message_id", msg.ID, "error", err)
	}

	slog.Info("Message accepted", "user_id", userID, "message_id", msg.ID, "job_id", job.ID)
	return &Submission{JobID: job.ID, MessageID: msg.ID}, nil
}

// Resume runs extraction, derivation and completion for a persisted
// message. Rows left by an earlier attempt on the same message are cleared
// first. A zero jobID starts a new job.
func (o *Orchestrator) Resume(ctx context.Context, messageID, jobID uint) (*Result, error) {
	start := time.Now()

	msg, err := o.deps.Repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("load message %d: %v: %w", messageID, err, ErrPersistence)
	}
	if msg.IsProcessed {
		return nil, ErrAlreadyProcessed
	}

	if jobID == 0 {
		job, err := o.deps.Jobs.Start(ctx, msg.UserID, "Reprocessing message")
		if err != nil {
			return nil, fmt.Errorf("start job: %v: %w", err, ErrPersistence)
		}
		jobID = job.ID
		if err := o.deps.Jobs.Attach(ctx, jobID, msg.ID); err != nil {
			slog.Warn("Failed to attach job to message", "job_id", jobID, "message_id", msg.ID, "error", err)
		}
	}

	logger := slog.With("user_id", msg.UserID, "message_id", msg.ID, "job_id", jobID)

	if msg.Attempts > 0 {
		if err := o.deps.Repo.ClearDerived(ctx, msg.ID); err != nil {
			return nil, fmt.Errorf("clear previous attempt: %v: %w", err, ErrPersistence)
		}
	}
	if err := o.deps.Repo.RecordAttempt(ctx, msg.ID); err != nil {
		logger.Warn("Failed to record attempt", "error", err)
	}

	foods, symptoms, err := o.extract(ctx, msg.Content)
	if err != nil {
		logger.Error("Extraction failed", "error", err)
		return nil, fmt.Errorf("%v: %w", err, ErrExtraction)
	}
	if raw, err := json.Marshal(extraction{Foods: foods, Symptoms: symptoms}); err == nil {
		if err := o.deps.Repo.SaveExtraction(ctx, msg.ID, raw); err != nil {
			logger.Warn("Failed to save extraction", "error", err)
		}
	}

	result := &Result{Submission: Submission{JobID: jobID, MessageID: msg.ID}}
	if err := o.derive(ctx, logger, msg, foods, symptoms, result); err != nil {
		return nil, err
	}

	if err := o.deps.Repo.MarkMessageProcessed(ctx, msg.ID); err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			logger.Warn("Message processed by a concurrent run, discarding this run")
			o.discard(ctx, logger, result)
			return nil, ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("mark processed: %v: %w", err, ErrPersistence)
	}

	if err := o.deps.Jobs.Complete(ctx, jobID); err != nil {
		logger.Error("Failed to complete job", "error", err)
	}

	if o.deps.Feedback != nil && len(result.Foods) > 0 {
		if err := o.deps.Feedback.ScheduleFeedback(ctx, msg.UserID, msg.LogicalDate); err != nil {
			logger.Warn("Failed to schedule feedback", "error", err)
		}
	}

	logger.Info("Message processed",
		"foods", len(result.Foods),
		"skipped", len(result.Skipped),
		"symptoms", len(result.Symptoms),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// extract runs food and symptom extraction concurrently
func (o *Orchestrator) extract(ctx context.Context, content string) ([]string, []string, error) {
	var foods, symptoms []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		foods, err = o.deps.AI.ExtractFoods(gctx, content)
		if err != nil {
			return fmt.Errorf("extract foods: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		symptoms, err = o.deps.AI.ExtractSymptoms(gctx, content)
		if err != nil {
			return fmt.Errorf("extract symptoms: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return foods, symptoms, nil
}

// derive writes symptoms and runs one pipeline per food, waiting for all of
// them. Only the symptom write can fail the run.
func (o *Orchestrator) derive(ctx context.Context, logger *slog.Logger, msg *models.Message, foods, symptoms []string, result *Result) error {
	var (
		wg         sync.WaitGroup
		symptomErr error
		entries    = make([]*models.FoodEntry, len(foods))
		rows       = make([]models.Symptom, 0, len(symptoms))
	)

	for _, s := range symptoms {
		rows = append(rows, models.Symptom{
			UserID:      msg.UserID,
			MessageID:   &msg.ID,
			LogicalDate: msg.LogicalDate,
			Description: s,
		})
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		symptomErr = o.deps.Repo.CreateSymptoms(ctx, rows)
	}()

	for i, food := range foods {
		wg.Add(1)
		go func(i int, food string) {
			defer wg.Done()
			entry, err := o.processFood(ctx, logger, msg, food)
			if err != nil {
				logger.Error("Food item skipped", "food", food, "error", err)
				return
			}
			entries[i] = entry
		}(i, food)
	}

	wg.Wait()

	for i, entry := range entries {
		if entry == nil {
			result.Skipped = append(result.Skipped, foods[i])
			continue
		}
		result.Foods = append(result.Foods, *entry)
	}

	if symptomErr != nil {
		o.discard(ctx, logger, result)
		return fmt.Errorf("create symptoms: %v: %w", symptomErr, ErrPersistence)
	}
	result.Symptoms = rows
	return nil
}

// processFood resolves an image and servings for one food and persists it
func (o *Orchestrator) processFood(ctx context.Context, logger *slog.Logger, msg *models.Message, food string) (*models.FoodEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.ItemTimeout)
	defer cancel()

	entry := &models.FoodEntry{
		UserID:         msg.UserID,
		MessageID:      &msg.ID,
		LogicalDate:    msg.LogicalDate,
		Description:    food,
		DescriptionKey: NormalizeDescription(food),
	}

	var estimates []ai.ServingEstimate
	g, gctx := errgroup.WithContext(ctx)

	if ref, ok := o.cache.Lookup(ctx, food); ok {
		entry.ImageURL = &ref
	} else {
		g.Go(func() error {
			prompt, ref, err := o.generateImage(gctx, logger, food)
			if err != nil {
				return err
			}
			entry.ImagePrompt = &prompt
			entry.ImageURL = &ref
			return nil
		})
	}

	g.Go(func() error {
		var err error
		estimates, err = o.deps.AI.ExtractServings(gctx, food, o.deps.Catalog.Names())
		if err != nil {
			return fmt.Errorf("classify servings: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := o.deps.Repo.CreateFoodEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("create food entry: %w", err)
	}

	for _, est := range estimates {
		group, ok := o.deps.Catalog.Lookup(est.FoodGroup)
		if !ok {
			logger.Warn("Unknown food group ignored", "food", food, "food_group", est.FoodGroup)
			continue
		}
		serving, err := o.deps.Repo.UpsertServing(ctx, msg.UserID, entry.ID, group.ID, est.Servings)
		if err != nil {
			logger.Error("Failed to write serving", "food", food, "food_group", group.Name, "error", err)
			continue
		}
		if serving != nil {
			entry.Servings = upsertLocal(entry.Servings, *serving)
		}
	}

	return entry, nil
}

// generateImage builds the prompt, renders it and uploads the bytes
func (o *Orchestrator) generateImage(ctx context.Context, logger *slog.Logger, food string) (string, string, error) {
	prompt := ai.DefaultImagePrompt(food)
	if o.opts.RefineImagePrompts {
		refined, err := o.deps.AI.RefineImagePrompt(ctx, food)
		if err != nil {
			logger.Warn("Image prompt refinement failed, using default", "food", food, "error", err)
		} else if strings.TrimSpace(refined) != "" {
			prompt = refined
		}
	}

	data, err := o.deps.Images.GenerateImage(ctx, prompt)
	if err != nil {
		return "", "", fmt.Errorf("generate image: %w", err)
	}
	if len(data) == 0 {
		return "", "", fmt.Errorf("generate image: %w", ai.ErrNoImage)
	}

	ref, err := o.deps.Objects.Put(ctx, objectstore.FoodImageKey(food), data, objectstore.ContentTypePNG)
	if err != nil {
		return "", "", fmt.Errorf("upload image: %w", err)
	}
	return prompt, ref, nil
}

// discard soft-deletes what this run wrote. It runs even when ctx is
// already cancelled.
func (o *Orchestrator) discard(ctx context.Context, logger *slog.Logger, result *Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	foodIDs := make([]uint, 0, len(result.Foods))
	for _, f := range result.Foods {
		foodIDs = append(foodIDs, f.ID)
	}
	symptomIDs := make([]uint, 0, len(result.Symptoms))
	for _, s := range result.Symptoms {
		if s.ID != 0 {
			symptomIDs = append(symptomIDs, s.ID)
		}
	}
	if err := o.deps.Repo.DiscardRun(ctx, foodIDs, symptomIDs); err != nil {
		logger.Error("Failed to discard run", "error", err)
	}
}

// upsertLocal keeps one serving per food group in the returned entry
func upsertLocal(servings []models.Serving, s models.Serving) []models.Serving {
	for i := range servings {
		if servings[i].FoodGroupID == s.FoodGroupID {
			servings[i] = s
			return servings
		}
	}
	return append(servings, s)
}

func validateInput(userID, logicalDate, rawText string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required: %w", ErrInvalidInput)
	}
	if strings.TrimSpace(rawText) == "" {
		return fmt.Errorf("message is empty: %w", ErrInvalidInput)
	}
	parsed, err := time.Parse(LogicalDateLayout, logicalDate)
	if err != nil || parsed.Format(LogicalDateLayout) != logicalDate {
		return fmt.Errorf("logical date %q is not YYYY-MM-DD: %w", logicalDate, ErrInvalidInput)
	}
	return nil
}
