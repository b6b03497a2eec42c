package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// Subscriber follows the job event stream for a single user. Every
// subscriber reads independently with XREAD, so no consumer group state is
// kept for short-lived HTTP clients.
type Subscriber struct {
	rdb   *redis.Client
	block time.Duration
}

// NewSubscriber creates a Subscriber on its own connection
func NewSubscriber(redisURL string) (*Subscriber, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	// Read timeout must exceed the XRead Block duration (5s)
	// to avoid spurious i/o timeout errors on idle streams.
	opts.ReadTimeout = 10 * time.Second

	return NewSubscriberWithClient(redis.NewClient(opts), 5*time.Second), nil
}

// NewSubscriberWithClient wraps an existing client with a block duration
func NewSubscriberWithClient(rdb *redis.Client, block time.Duration) *Subscriber {
	return &Subscriber{rdb: rdb, block: block}
}

// Follow delivers the user's events published after the call until ctx is
// done or handler returns an error. A nil handler error keeps following.
func (s *Subscriber) Follow(ctx context.Context, userID string, handler func(JobEvent) error) error {
	return s.FollowFrom(ctx, userID, "$", handler)
}

// FollowFrom is Follow starting after the stream entry lastID ("0" replays
// the whole stream). Entries of other users are never passed to handler.
func (s *Subscriber) FollowFrom(ctx context.Context, userID, lastID string, handler func(JobEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := s.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{StreamJobEvents, lastID},
			Count:   50,
			Block:   s.block,
		}).Result()

		if err == redis.Nil {
			continue
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Blocking reads return a timeout when no messages arrive
			// within the Block duration; this is normal, not an error.
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			slog.Error("Failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				lastID = message.ID

				if owner, _ := message.Values["user_id"].(string); owner != userID {
					continue
				}

				payloadStr, ok := message.Values["payload"].(string)
				if !ok {
					slog.Error("Invalid message payload", "message_id", message.ID)
					continue
				}

				var event JobEvent
				if err := json.Unmarshal([]byte(payloadStr), &event); err != nil {
					slog.Error("Failed to unmarshal event", "error", err, "message_id", message.ID)
					continue
				}

				if err := handler(event); err != nil {
					return err
				}
			}
		}
	}
}

// Close closes the Redis client connection
func (s *Subscriber) Close() error {
	return s.rdb.Close()
}
