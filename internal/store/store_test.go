package store

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/jimdaga/food-journal/internal/models"
	"github.com/jimdaga/food-journal/internal/testdb"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(testdb.Open(t))
}

func strPtr(s string) *string { return &s }

func createFood(t *testing.T, s *Store, userID, description, key string, imageURL *string) *models.FoodEntry {
	t.Helper()
	entry := &models.FoodEntry{
		UserID:         userID,
		LogicalDate:    "2025-01-15",
		Description:    description,
		DescriptionKey: key,
		ImageURL:       imageURL,
	}
	if err := s.CreateFoodEntry(context.Background(), entry); err != nil {
		t.Fatalf("CreateFoodEntry: %v", err)
	}
	return entry
}

func createGroup(t *testing.T, s *Store, name string) *models.FoodGroup {
	t.Helper()
	group := &models.FoodGroup{Name: name}
	if err := s.UpsertFoodGroup(context.Background(), group); err != nil {
		t.Fatalf("UpsertFoodGroup: %v", err)
	}
	return group
}

func TestUpsertServingKeepsOneRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	food := createFood(t, s, "user-1", "1 cup of spinach", "1 cup of spinach", nil)
	group := createGroup(t, s, "Vegetables")

	if _, err := s.UpsertServing(ctx, "user-1", food.ID, group.ID, 1); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	got, err := s.UpsertServing(ctx, "user-1", food.ID, group.ID, 2.5)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if got == nil || got.Servings != 2.5 {
		t.Fatalf("expected servings 2.5, got %+v", got)
	}

	servings, err := s.ListServings(ctx, food.ID)
	if err != nil {
		t.Fatalf("ListServings: %v", err)
	}
	if len(servings) != 1 {
		t.Fatalf("expected exactly 1 serving row, got %d", len(servings))
	}
	if servings[0].Servings != 2.5 {
		t.Errorf("expected latest value 2.5, got %v", servings[0].Servings)
	}
}

func TestUpsertServingZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	food := createFood(t, s, "user-1", "1 apple", "1 apple", nil)
	group := createGroup(t, s, "Fruits")

	got, err := s.UpsertServing(ctx, "user-1", food.ID, group.ID, 0)
	if err != nil {
		t.Fatalf("UpsertServing: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no row for a zero serving, got %+v", got)
	}

	if _, err := s.UpsertServing(ctx, "user-1", food.ID, group.ID, 1); err != nil {
		t.Fatalf("UpsertServing: %v", err)
	}
	got, err = s.UpsertServing(ctx, "user-1", food.ID, group.ID, -3)
	if err != nil {
		t.Fatalf("UpsertServing: %v", err)
	}
	if got == nil || got.Servings != 0 {
		t.Fatalf("expected existing row zeroed, got %+v", got)
	}
}

func TestNormalizeServings(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1, 1},
		{0.3, 0.25},
		{0.4, 0.5},
		{1.874, 1.75},
		{-2, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{math.Inf(-1), 0},
	}

	for _, tt := range tests {
		if got := NormalizeServings(tt.in); got != tt.want {
			t.Errorf("NormalizeServings(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFindCachedImage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.FindCachedImage(ctx, "1 cup of black coffee"); err != nil || ok {
		t.Fatalf("expected miss on empty table, got ok=%v err=%v", ok, err)
	}

	createFood(t, s, "user-1", "1 cup of black coffee", "1 cup of black coffee", nil)
	if _, ok, _ := s.FindCachedImage(ctx, "1 cup of black coffee"); ok {
		t.Fatalf("entries without an image must not be cache hits")
	}

	createFood(t, s, "user-1", "1 cup of black coffee", "1 cup of black coffee", strPtr("https://img/old.png"))
	newest := createFood(t, s, "user-2", "1 Cup of Black Coffee", "1 cup of black coffee", strPtr("https://img/new.png"))

	url, ok, err := s.FindCachedImage(ctx, "1 cup of black coffee")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if url != "https://img/new.png" {
		t.Errorf("expected newest image, got %s", url)
	}

	if err := s.DB().Delete(newest).Error; err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	url, ok, _ = s.FindCachedImage(ctx, "1 cup of black coffee")
	if !ok || url != "https://img/old.png" {
		t.Errorf("expected soft-deleted entry skipped, got %s (ok=%v)", url, ok)
	}
}

func TestMarkMessageProcessedOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &models.Message{UserID: "user-1", LogicalDate: "2025-01-15", Content: "a banana"}
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	if err := s.MarkMessageProcessed(ctx, msg.ID); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := s.MarkMessageProcessed(ctx, msg.ID); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}

	loaded, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if !loaded.IsProcessed || loaded.ProcessedAt == nil {
		t.Errorf("expected processed message, got %+v", loaded)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetMessage(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListStaleUnprocessed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-time.Hour)
	stale := &models.Message{UserID: "u", LogicalDate: "2025-01-15", Content: "stale", CreatedAt: old}
	exhausted := &models.Message{UserID: "u", LogicalDate: "2025-01-15", Content: "exhausted", CreatedAt: old, Attempts: 3}
	fresh := &models.Message{UserID: "u", LogicalDate: "2025-01-15", Content: "fresh"}
	for _, m := range []*models.Message{stale, exhausted, fresh} {
		if err := s.CreateMessage(ctx, m); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}

	msgs, err := s.ListStaleUnprocessed(ctx, time.Now().Add(-10*time.Minute), 3, 10)
	if err != nil {
		t.Fatalf("ListStaleUnprocessed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != stale.ID {
		t.Fatalf("expected only the stale message, got %+v", msgs)
	}

	pending, err := s.HasUnprocessedMessages(ctx, "u")
	if err != nil || !pending {
		t.Errorf("expected pending messages, got %v (%v)", pending, err)
	}
}

func TestClearDerived(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &models.Message{UserID: "u", LogicalDate: "2025-01-15", Content: "toast"}
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	entry := &models.FoodEntry{UserID: "u", MessageID: &msg.ID, LogicalDate: "2025-01-15", Description: "1 slice of toast", DescriptionKey: "1 slice of toast"}
	if err := s.CreateFoodEntry(ctx, entry); err != nil {
		t.Fatalf("CreateFoodEntry: %v", err)
	}
	if err := s.CreateSymptoms(ctx, []models.Symptom{{UserID: "u", MessageID: &msg.ID, LogicalDate: "2025-01-15", Description: "bloating"}}); err != nil {
		t.Fatalf("CreateSymptoms: %v", err)
	}

	if err := s.ClearDerived(ctx, msg.ID); err != nil {
		t.Fatalf("ClearDerived: %v", err)
	}

	foods, _ := s.ListFoodForDate(ctx, "u", "2025-01-15")
	if len(foods) != 0 {
		t.Errorf("expected food entries soft-deleted, got %d", len(foods))
	}
	var withDeleted int64
	s.DB().Unscoped().Model(&models.FoodEntry{}).Count(&withDeleted)
	if withDeleted != 1 {
		t.Errorf("expected the food row kept for soft deletion, got %d", withDeleted)
	}
	var symptoms int64
	s.DB().Model(&models.Symptom{}).Count(&symptoms)
	if symptoms != 0 {
		t.Errorf("expected symptoms removed, got %d", symptoms)
	}
}

func TestJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := &models.Job{UserID: "u", Description: "processing message", StartedAt: time.Now().Add(-time.Hour)}
	running := &models.Job{UserID: "u", Description: "processing message"}
	done := &models.Job{UserID: "u", Description: "processing message"}
	for _, j := range []*models.Job{old, running, done} {
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	if err := s.CompleteJob(ctx, done.ID, time.Now()); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if err := s.CompleteJob(ctx, done.ID, time.Now()); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}

	pending, err := s.ListJobs(ctx, "u", JobFilter{PendingOnly: true, StartedAfter: time.Now().Add(-2 * time.Minute)})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != running.ID {
		t.Fatalf("expected only the running job, got %+v", pending)
	}

	all, err := s.ListJobs(ctx, "u", JobFilter{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 jobs, got %d", len(all))
	}
}

func TestLatestFeedback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LatestFeedback(ctx, "u", "2025-01-15"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for _, content := range []string{"first", "second"} {
		if err := s.CreateFeedback(ctx, &models.Feedback{UserID: "u", LogicalDate: "2025-01-15", Content: content}); err != nil {
			t.Fatalf("CreateFeedback: %v", err)
		}
	}

	fb, err := s.LatestFeedback(ctx, "u", "2025-01-15")
	if err != nil {
		t.Fatalf("LatestFeedback: %v", err)
	}
	if fb.Content != "second" {
		t.Errorf("expected newest feedback, got %q", fb.Content)
	}
}

func TestDiscardRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	keep := createFood(t, s, "user-1", "toast", "toast", nil)
	drop := createFood(t, s, "user-1", "jam", "jam", nil)
	symptoms := []models.Symptom{
		{UserID: "user-1", LogicalDate: "2025-01-15", Description: "tired"},
	}
	if err := s.CreateSymptoms(ctx, symptoms); err != nil {
		t.Fatalf("CreateSymptoms: %v", err)
	}

	if err := s.DiscardRun(ctx, []uint{drop.ID}, []uint{symptoms[0].ID}); err != nil {
		t.Fatalf("DiscardRun: %v", err)
	}

	entries, err := s.ListFoodForDate(ctx, "user-1", "2025-01-15")
	if err != nil {
		t.Fatalf("ListFoodForDate: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != keep.ID {
		t.Errorf("expected only %d to remain, got %+v", keep.ID, entries)
	}

	var count int64
	s.DB().Model(&models.Symptom{}).Count(&count)
	if count != 0 {
		t.Errorf("expected symptoms discarded, %d remain", count)
	}
}
