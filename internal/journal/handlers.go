// Package journal serves the HTTP API for submitting messages and
// following their analysis.
package journal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jimdaga/food-journal/internal/auth"
	"github.com/jimdaga/food-journal/internal/models"
	"github.com/jimdaga/food-journal/internal/pipeline"
	"github.com/jimdaga/food-journal/internal/store"
	"github.com/jimdaga/food-journal/internal/streams"
	"github.com/jimdaga/food-journal/internal/tracker"
)

// Processor runs the message pipeline
type Processor interface {
	ProcessMessage(ctx context.Context, userID, logicalDate, rawText string) (*pipeline.Result, error)
	Accept(ctx context.Context, userID, logicalDate, rawText string) (*pipeline.Submission, error)
}

// Enqueuer queues a persisted message for background processing
type Enqueuer interface {
	EnqueueMessage(ctx context.Context, messageID, jobID uint) error
}

// JobLister lists a user's jobs
type JobLister interface {
	ListRecent(ctx context.Context, userID string, filter tracker.Filter) ([]models.Job, error)
}

// Repository is the read side used by the status endpoints
type Repository interface {
	HasUnprocessedMessages(ctx context.Context, userID string) (bool, error)
	LatestFeedback(ctx context.Context, userID, logicalDate string) (*models.Feedback, error)
}

// EventFollower streams a user's job events until ctx is done
type EventFollower interface {
	Follow(ctx context.Context, userID string, handler func(streams.JobEvent) error) error
}

type processMessageRequest struct {
	LogicalDate string `json:"logicalDate"`
	Message     string `json:"message"`
}

// ProcessMessageHandler accepts a journal message. By default the pipeline
// runs inside the request; ?async=true persists the message, queues it and
// answers 202 with the job id.
func ProcessMessageHandler(processor Processor, enqueuer Enqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		var req processMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		ctx := c.Request.Context()

		if c.Query("async") == "true" && enqueuer != nil {
			sub, err := processor.Accept(ctx, userID, req.LogicalDate, req.Message)
			if err != nil {
				writeProcessError(c, err)
				return
			}
			if err := enqueuer.EnqueueMessage(ctx, sub.MessageID, sub.JobID); err != nil {
				// the message is durable; the reprocessing sweep picks it up
				slog.Error("Failed to enqueue message", "message_id", sub.MessageID, "error", err)
			}
			c.JSON(http.StatusAccepted, gin.H{"jobId": sub.JobID, "messageId": sub.MessageID})
			return
		}

		result, err := processor.ProcessMessage(ctx, userID, req.LogicalDate, req.Message)
		if err != nil {
			writeProcessError(c, err)
			return
		}
		c.JSON(http.StatusOK, newProcessResponse(result))
	}
}

func writeProcessError(c *gin.Context, err error) {
	if errors.Is(err, pipeline.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	slog.Error("Message processing failed", "user_id", auth.UserID(c), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process message"})
}

// ListJobsHandler returns the caller's recent jobs. ?status=pending limits
// the list to unfinished jobs started within the pending TTL.
func ListJobsHandler(jobs JobLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := tracker.Filter{Limit: 50}
		switch c.Query("status") {
		case "":
		case "pending":
			filter.PendingOnly = true
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be pending or empty"})
			return
		}

		list, err := jobs.ListRecent(c.Request.Context(), auth.UserID(c), filter)
		if err != nil {
			slog.Error("Failed to list jobs", "user_id", auth.UserID(c), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
			return
		}

		out := make([]jobResponse, 0, len(list))
		for _, j := range list {
			out = append(out, newJobResponse(j))
		}
		c.JSON(http.StatusOK, gin.H{"jobs": out})
	}
}

// JobEventsHandler streams the caller's job events as Server-Sent Events
func JobEventsHandler(follower EventFollower) gin.HandlerFunc {
	return func(c *gin.Context) {
		if follower == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Event stream unavailable"})
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Status(http.StatusOK)
		c.SSEvent("ready", gin.H{"at": time.Now().UTC()})
		c.Writer.Flush()

		err := follower.Follow(c.Request.Context(), auth.UserID(c), func(event streams.JobEvent) error {
			c.SSEvent("job", event)
			c.Writer.Flush()
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("Job event stream ended", "user_id", auth.UserID(c), "error", err)
		}
	}
}

// AnalysisStatusHandler reports whether any of the caller's messages are
// still waiting to be processed
func AnalysisStatusHandler(repo Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		pending, err := repo.HasUnprocessedMessages(c.Request.Context(), auth.UserID(c))
		if err != nil {
			slog.Error("Failed to check analysis status", "user_id", auth.UserID(c), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check analysis status"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"isPendingAnalysis": pending})
	}
}

// FeedbackHandler returns the newest feedback for ?date=YYYY-MM-DD
func FeedbackHandler(repo Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		date := c.Query("date")
		if _, err := time.Parse(pipeline.LogicalDateLayout, date); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}

		fb, err := repo.LatestFeedback(c.Request.Context(), auth.UserID(c), date)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No feedback for date"})
			return
		}
		if err != nil {
			slog.Error("Failed to load feedback", "user_id", auth.UserID(c), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load feedback"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"feedback": feedbackResponse{
			ID:          fb.ID,
			LogicalDate: fb.LogicalDate,
			Content:     fb.Content,
			CreatedAt:   fb.CreatedAt,
		}})
	}
}
