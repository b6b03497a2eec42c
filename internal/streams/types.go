// Package streams publishes job lifecycle events to a Redis Stream and
// lets HTTP clients follow them.
package streams

import "time"

// StreamJobEvents is the Redis Stream carrying job lifecycle events
const StreamJobEvents = "journal:job-events"

// SchemaVersionV1 tags every stream entry
const SchemaVersionV1 = "v1"

// Job event types
const (
	EventJobStarted   = "job.started"
	EventJobCompleted = "job.completed"
)

// JobEvent is one job lifecycle transition
type JobEvent struct {
	Type        string    `json:"type"`
	JobID       uint      `json:"job_id"`
	UserID      string    `json:"user_id"`
	MessageID   *uint     `json:"message_id,omitempty"`
	Description string    `json:"description"`
	At          time.Time `json:"at"`
}
