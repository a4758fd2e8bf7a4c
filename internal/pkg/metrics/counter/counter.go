package counter

import (
	"context"

	"github.com/keetontrades/membergate/internal/pkg/cache"
)

const opsCountersKey = "membergate:counters:ops"

const (
	FieldEventsApplied     = "events_applied"
	FieldEventsStale       = "events_stale"
	FieldEventsAnomalous   = "events_anomalous"
	FieldCacheHits         = "access_cache_hits"
	FieldCacheMisses       = "access_cache_misses"
	FieldCheckoutsStarted  = "checkouts_started"
	FieldCheckoutsFailed   = "checkouts_failed"
	FieldWebhooksReceived  = "webhooks_received"
	FieldWebhooksDuplicate = "webhooks_duplicate"
)

// Counters live in a single Redis hash so a fleet of instances aggregates
// naturally. Callers ignore errors: when the cache is down the numbers are
// simply not collected.

func AddEventApplied() error { return incr(FieldEventsApplied) }

func AddEventStale() error { return incr(FieldEventsStale) }

func AddEventAnomaly() error { return incr(FieldEventsAnomalous) }

func AddCacheHit() error { return incr(FieldCacheHits) }

func AddCacheMiss() error { return incr(FieldCacheMisses) }

func AddCheckoutStarted() error { return incr(FieldCheckoutsStarted) }

func AddCheckoutFailed() error { return incr(FieldCheckoutsFailed) }

func AddWebhookReceived() error { return incr(FieldWebhooksReceived) }

func AddWebhookDuplicate() error { return incr(FieldWebhooksDuplicate) }

func incr(field string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, opsCountersKey, field, 1).Err()
}

// Snapshot returns the current counter values. An unreachable cache yields an
// empty map and the error for the caller to log.
func Snapshot() (map[string]string, error) {
	ctx := context.Background()
	values, err := cache.GetClient().HGetAll(ctx, opsCountersKey).Result()
	if err != nil {
		return map[string]string{}, err
	}
	return values, nil
}
