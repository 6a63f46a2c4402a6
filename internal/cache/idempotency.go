package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingMarker is stored under a reserved key until the purchase that
// claimed it commits.
const PendingMarker = "pending"

// reserveScript returns the value already stored under the key, or an empty
// string after claiming it with the pending marker.
const reserveScript = `
local v = redis.call('GET', KEYS[1])
if v then
	return v
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return ''
`

// releaseScript deletes the key only while it still holds the pending marker.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`

// Reservation is the outcome of claiming an idempotency key.
type Reservation struct {
	// Acquired means the caller owns the key and must Complete or Release it.
	Acquired bool
	// TransactionID is set when an earlier attempt already completed.
	TransactionID string
}

// Pending reports whether another attempt holds the key and has not
// finished yet.
func (r Reservation) Pending() bool {
	return !r.Acquired && r.TransactionID == ""
}

// IdempotencyStore remembers which transaction a buyer's idempotency key
// produced.
type IdempotencyStore struct {
	rdb        redis.Cmdable
	ttl        time.Duration
	reserveTTL time.Duration
}

func NewIdempotencyStore(rdb redis.Cmdable, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = TTLIdempotency
	}
	return &IdempotencyStore{rdb: rdb, ttl: ttl, reserveTTL: TTLReservation}
}

// Reserve claims key for a purchase in progress in a single round trip. A
// crashed holder's claim lapses after TTLReservation.
func (s *IdempotencyStore) Reserve(ctx context.Context, buyerID, key string) (Reservation, error) {
	v, err := s.rdb.Eval(ctx, reserveScript, []string{fmt.Sprintf(KeyIdemBuy, buyerID, key)},
		PendingMarker, s.reserveTTL.Milliseconds()).Text()
	if err != nil {
		return Reservation{}, fmt.Errorf("reserve idempotency key: %w", err)
	}

	switch v {
	case "":
		return Reservation{Acquired: true}, nil
	case PendingMarker:
		return Reservation{}, nil
	default:
		return Reservation{TransactionID: v}, nil
	}
}

// Complete stores the transaction for a reserved key.
func (s *IdempotencyStore) Complete(ctx context.Context, buyerID, key, transactionID string) error {
	if err := s.rdb.Set(ctx, fmt.Sprintf(KeyIdemBuy, buyerID, key), transactionID, s.ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release frees a reserved key after a failed purchase so a retry can run.
func (s *IdempotencyStore) Release(ctx context.Context, buyerID, key string) error {
	err := s.rdb.Eval(ctx, releaseScript, []string{fmt.Sprintf(KeyIdemBuy, buyerID, key)}, PendingMarker).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
