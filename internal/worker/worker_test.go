package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/jimdaga/food-journal/internal/feedback"
	"github.com/jimdaga/food-journal/internal/models"
	"github.com/jimdaga/food-journal/internal/pipeline"
	"github.com/jimdaga/food-journal/internal/store"
	"github.com/jimdaga/food-journal/internal/testdb"
)

func discardLogger() *slog.Logger {
	return NewLoggerTo(&bytes.Buffer{}, "error", "text")
}

type fakeProcessor struct {
	calls []processMessagePayload
	err   error
}

func (f *fakeProcessor) Resume(ctx context.Context, messageID, jobID uint) (*pipeline.Result, error) {
	f.calls = append(f.calls, processMessagePayload{MessageID: messageID, JobID: jobID})
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Result{Submission: pipeline.Submission{MessageID: messageID, JobID: jobID}}, nil
}

func TestProcessMessageTask(t *testing.T) {
	task, err := NewProcessMessageTask(42, 7)
	if err != nil {
		t.Fatalf("NewProcessMessageTask: %v", err)
	}
	if task.Type() != TaskProcessMessage {
		t.Errorf("unexpected type %s", task.Type())
	}

	processor := &fakeProcessor{}
	if err := handleProcessMessage(discardLogger(), processor)(context.Background(), task); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(processor.calls) != 1 || processor.calls[0].MessageID != 42 || processor.calls[0].JobID != 7 {
		t.Errorf("unexpected calls %+v", processor.calls)
	}
}

func TestProcessMessageTaskErrors(t *testing.T) {
	tests := []struct {
		name      string
		payload   []byte
		err       error
		wantErr   bool
		skipRetry bool
	}{
		{"invalid payload", []byte("{"), nil, true, true},
		{"missing message id", []byte(`{"job_id":1}`), nil, true, true},
		{"already processed", []byte(`{"message_id":1}`), pipeline.ErrAlreadyProcessed, false, false},
		{"not found", []byte(`{"message_id":1}`), store.ErrNotFound, true, true},
		{"extraction failure retried", []byte(`{"message_id":1}`), pipeline.ErrExtraction, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := handleProcessMessage(discardLogger(), &fakeProcessor{err: tt.err})
			err := handler(context.Background(), asynq.NewTask(TaskProcessMessage, tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %t", err, tt.wantErr)
			}
			if errors.Is(err, asynq.SkipRetry) != tt.skipRetry {
				t.Errorf("SkipRetry = %t, want %t (err %v)", errors.Is(err, asynq.SkipRetry), tt.skipRetry, err)
			}
		})
	}
}

func TestReprocessSweepEnqueuesStaleMessages(t *testing.T) {
	s := store.New(testdb.Open(t))
	ctx := context.Background()

	old := time.Now().Add(-time.Hour)
	messages := []*models.Message{
		{UserID: "user-1", LogicalDate: "2025-01-15", Content: "stale", CreatedAt: old},
		{UserID: "user-1", LogicalDate: "2025-01-15", Content: "fresh"},
		{UserID: "user-1", LogicalDate: "2025-01-15", Content: "exhausted", CreatedAt: old, Attempts: 3},
	}
	for _, m := range messages {
		if err := s.CreateMessage(ctx, m); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}

	var enqueued []uint
	enqueue := func(ctx context.Context, messageID, jobID uint) error {
		if jobID != 0 {
			t.Errorf("sweep should let the handler start a job, got job %d", jobID)
		}
		enqueued = append(enqueued, messageID)
		return nil
	}

	handler := handleReprocessSweep(discardLogger(), s, SweepConfig{After: 10 * time.Minute, MaxAttempts: 3, Limit: 10}, enqueue)
	if err := handler(ctx, asynq.NewTask(TaskReprocessSweep, nil)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(enqueued) != 1 || enqueued[0] != messages[0].ID {
		t.Errorf("expected only message %d enqueued, got %v", messages[0].ID, enqueued)
	}
}

type fakeGenerator struct {
	err error
}

func (f fakeGenerator) Generate(ctx context.Context, userID, logicalDate string) (*models.Feedback, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Feedback{ID: 1, UserID: userID, LogicalDate: logicalDate}, nil
}

func TestGenerateFeedbackTask(t *testing.T) {
	task, err := NewGenerateFeedbackTask("user-1", "2025-01-15")
	if err != nil {
		t.Fatalf("NewGenerateFeedbackTask: %v", err)
	}
	var payload feedbackPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.UserID != "user-1" || payload.LogicalDate != "2025-01-15" {
		t.Errorf("unexpected payload %+v", payload)
	}

	if err := handleGenerateFeedback(discardLogger(), fakeGenerator{})(context.Background(), task); err != nil {
		t.Errorf("handler: %v", err)
	}
	if err := handleGenerateFeedback(discardLogger(), fakeGenerator{err: feedback.ErrNoFoods})(context.Background(), task); err != nil {
		t.Errorf("no foods should not be retried: %v", err)
	}
	if err := handleGenerateFeedback(discardLogger(), fakeGenerator{err: errors.New("llm down")})(context.Background(), task); err == nil {
		t.Error("expected error to be retried")
	}
}

func TestMessageTaskID(t *testing.T) {
	if got := MessageTaskID(12); got != "message:12" {
		t.Errorf("MessageTaskID(12) = %q", got)
	}
}

func TestEnqueueWithoutClient(t *testing.T) {
	if err := EnqueueProcessMessage(context.Background(), 1, 1); err == nil {
		t.Error("expected error without client")
	}
}

func TestNewLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "job_id", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	var line map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q", out)
	}
	if line["msg"] != "shown" || line["service"] != "food-journal" {
		t.Errorf("unexpected log line %v", line)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
