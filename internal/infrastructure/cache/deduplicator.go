package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// dedupKeyPrefix is the prefix for all deduplication keys
const dedupKeyPrefix = "paysettle:dedup:"

// DedupKind namespaces deduplication keys.
type DedupKind string

const (
	// DedupWebhookEvent marks a processor webhook event as handled
	DedupWebhookEvent DedupKind = "webhook_event"
	// DedupPollFailureAlert throttles alerts for an order whose poller keeps failing
	DedupPollFailureAlert DedupKind = "poll_failure_alert"
)

// Deduplicator provides Redis-based deduplication shared by every instance.
type Deduplicator struct {
	client *redis.Client
}

// NewDeduplicator creates a new Deduplicator instance
func NewDeduplicator(client *redis.Client) *Deduplicator {
	return &Deduplicator{client: client}
}

// buildKey builds the Redis key
// Format: paysettle:dedup:{kind}:{id}
func (d *Deduplicator) buildKey(kind DedupKind, id string) string {
	return fmt.Sprintf("%s%s:%s", dedupKeyPrefix, kind, id)
}

// TryAcquire atomically claims id for ttl using SetNX.
// Returns true if this caller claimed it, false if it was already claimed.
func (d *Deduplicator) TryAcquire(ctx context.Context, kind DedupKind, id string, ttl time.Duration) (bool, error) {
	acquired, err := d.client.SetNX(ctx, d.buildKey(kind, id), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire dedup key: %w", err)
	}
	return acquired, nil
}

// Release drops a claim so a retry can be processed again.
func (d *Deduplicator) Release(ctx context.Context, kind DedupKind, id string) error {
	if err := d.client.Del(ctx, d.buildKey(kind, id)).Err(); err != nil {
		return fmt.Errorf("failed to release dedup key: %w", err)
	}
	return nil
}

// Remaining returns how long a claim still holds, or 0 if there is none.
func (d *Deduplicator) Remaining(ctx context.Context, kind DedupKind, id string) (time.Duration, error) {
	ttl, err := d.client.TTL(ctx, d.buildKey(kind, id)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get dedup ttl: %w", err)
	}
	// TTL returns -2 if key doesn't exist, -1 if no TTL set
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
