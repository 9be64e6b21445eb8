package billing

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventGuard deduplicates webhook deliveries by event id. The processor
// delivers at least once; the guard short-circuits exact redeliveries before
// they reach the store. It is an optimization, not a correctness requirement:
// every store write stays idempotent on its own, so a guard outage degrades to
// slightly more work, never to incorrect state.
type EventGuard interface {
	// CheckAndMark records the event id and reports whether it was seen before.
	CheckAndMark(ctx context.Context, eventID string) (seen bool, err error)

	// Unmark releases a previously taken mark. Called when handling fails
	// after the mark was taken, so the processor's retry of the same event id
	// is processed instead of skipped as a duplicate.
	Unmark(ctx context.Context, eventID string) error
}

const guardKeyPrefix = "billing:webhook:event:"

type redisGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisGuard returns an EventGuard backed by a redis SET NX with the given
// TTL. The TTL only needs to outlive the processor's retry horizon.
func NewRedisGuard(client redis.UniversalClient, ttl time.Duration) EventGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisGuard{client: client, ttl: ttl}
}

func (g *redisGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	stored, err := g.client.SetNX(ctx, guardKeyPrefix+eventID, 1, g.ttl).Result()
	if err != nil {
		return false, err
	}
	return !stored, nil
}

func (g *redisGuard) Unmark(ctx context.Context, eventID string) error {
	return g.client.Del(ctx, guardKeyPrefix+eventID).Err()
}
