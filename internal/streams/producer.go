package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// streamMaxLen caps the job event stream; followers only read new entries
const streamMaxLen = 10000

// Publisher appends job events to the job event stream
type Publisher struct {
	rdb *redis.Client
	now func() time.Time
}

// NewPublisher connects to Redis at redisURL
func NewPublisher(redisURL string) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return NewPublisherWithClient(redis.NewClient(opts)), nil
}

// NewPublisherWithClient wraps an existing client
func NewPublisherWithClient(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb, now: time.Now}
}

// PublishJobEvent appends event and returns the stream entry id. A zero
// event time is stamped with the current time.
func (p *Publisher) PublishJobEvent(ctx context.Context, event JobEvent) (string, error) {
	if event.At.IsZero() {
		event.At = p.now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job event: %w", err)
	}

	id, err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamJobEvents,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":           event.Type,
			"user_id":        event.UserID,
			"payload":        string(payload),
			"schema_version": SchemaVersionV1,
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish %s for job %d: %w", event.Type, event.JobID, err)
	}
	return id, nil
}

// Close closes the Redis client
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
