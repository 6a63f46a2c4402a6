// Package cache keeps short lived listing reads and purchase idempotency
// keys in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ticket-resale/models"

	"github.com/redis/go-redis/v9"
)

// setIfGenerationScript writes the listing only while the ticket's
// generation still matches the one observed before the store read.
const setIfGenerationScript = `
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`

// ListingCache caches unexpanded listings by ticket. Every invalidation
// bumps a per-ticket generation, and a fill is dropped when the generation
// moved since the miss that triggered it.
type ListingCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewListingCache(rdb redis.Cmdable, ttl time.Duration) *ListingCache {
	if ttl <= 0 {
		ttl = TTLListing
	}
	return &ListingCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached listing, or nil on a miss, along with the current
// generation to pass to Set.
func (c *ListingCache) Get(ctx context.Context, ticketRef string) (*models.Listing, int64, error) {
	vals, err := c.rdb.MGet(ctx,
		fmt.Sprintf(KeyListingByTicket, ticketRef),
		fmt.Sprintf(KeyListingGeneration, ticketRef),
	).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("get cached listing: %w", err)
	}

	var generation int64
	if raw, ok := vals[1].(string); ok {
		if generation, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, 0, fmt.Errorf("decode listing generation: %w", err)
		}
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, generation, nil
	}

	var listing models.Listing
	if err := json.Unmarshal([]byte(raw), &listing); err != nil {
		return nil, generation, fmt.Errorf("decode cached listing: %w", err)
	}
	return &listing, generation, nil
}

// Set caches listing if no invalidation happened since generation was read.
// A dropped write is not an error.
func (c *ListingCache) Set(ctx context.Context, listing *models.Listing, generation int64) error {
	data, err := json.Marshal(listing.Clone())
	if err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}

	err = c.rdb.Eval(ctx, setIfGenerationScript, []string{
		fmt.Sprintf(KeyListingByTicket, listing.TicketRef),
		fmt.Sprintf(KeyListingGeneration, listing.TicketRef),
	}, strconv.FormatInt(generation, 10), string(data), c.ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cache listing: %w", err)
	}
	return nil
}

// Invalidate drops the cached listing and bumps the generation in one
// MULTI/EXEC.
func (c *ListingCache) Invalidate(ctx context.Context, ticketRef string) error {
	genKey := fmt.Sprintf(KeyListingGeneration, ticketRef)

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, fmt.Sprintf(KeyListingByTicket, ticketRef))
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, TTLGeneration)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate listing: %w", err)
	}
	return nil
}
