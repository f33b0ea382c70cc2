package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
)

// DefaultRedisKey is the list the push collaborator consumes with BRPOP.
const DefaultRedisKey = "leadgrid:notifications"

// RedisQueue enqueues assignment events onto a Redis list so the push
// collaborator can consume them across processes. At-least-once: Redis
// retains the event until the consumer pops it.
type RedisQueue struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewRedisQueue builds a queue over an existing client. An empty key uses
// DefaultRedisKey.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisQueue{client: client, key: key, timeout: EnqueueTimeout}
}

// Enqueue pushes the event with a bounded deadline. The caller treats a
// failure as best-effort: it is logged, never propagated into the commit.
func (q *RedisQueue) Enqueue(ctx context.Context, n lead.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

var _ Notifier = (*RedisQueue)(nil)
