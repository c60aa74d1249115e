package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStreamQueue pushes dispatched events onto per-repository Redis
// streams drained by the worker.
type RedisStreamQueue struct {
	client *redis.Client
}

// NewRedisStreamQueue connects to Redis at addr and verifies the
// connection.
func NewRedisStreamQueue(addr string) (*RedisStreamQueue, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisStreamQueue{client: client}, nil
}

// streamKey names the stream carrying one repository's events.
func streamKey(owner, repo string) string {
	return fmt.Sprintf("events~%s~%s", owner, repo)
}

// Push appends the event 5-tuple to the repository's stream.
func (q *RedisStreamQueue) Push(ctx context.Context, owner, repo string, pullNumber int, eventType string, slim *SlimEvent) error {
	payload, err := json.Marshal(slim)
	if err != nil {
		return fmt.Errorf("encoding slim event: %w", err)
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(owner, repo),
		Values: map[string]any{
			"owner":       owner,
			"repo":        repo,
			"pull_number": pullNumber,
			"event_type":  eventType,
			"data":        payload,
		},
	}).Err()
}

// Close releases the underlying Redis connection.
func (q *RedisStreamQueue) Close() error {
	return q.client.Close()
}
