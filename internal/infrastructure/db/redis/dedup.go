package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultDedupTTL = 72 * time.Hour

// DedupChecker remembers applied webhook events in Redis.
// Key format: webhook:event:<event_id>
type DedupChecker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDedupChecker creates a DedupChecker wrapping the given Redis client.
// Keys outlive the processor's redelivery window so replays stay cheap.
func NewDedupChecker(client *redis.Client, ttl time.Duration) *DedupChecker {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &DedupChecker{client: client, ttl: ttl}
}

// IsDuplicate reports whether this event id has already been applied.
func (d *DedupChecker) IsDuplicate(ctx context.Context, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return n > 0, nil
}

// Mark records that this event has been applied (expires after ttl).
func (d *DedupChecker) Mark(ctx context.Context, eventID string) error {
	if err := d.client.Set(ctx, d.key(eventID), "1", d.ttl).Err(); err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	return nil
}

func (d *DedupChecker) key(eventID string) string {
	return "webhook:event:" + eventID
}
