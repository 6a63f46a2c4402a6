package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

const keyPurchaseRate = "ratelimit:buy:%s"

// incrWindowScript counts a hit and starts the window on the first one, so
// a counter can never be left without an expiry.
const incrWindowScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`

// RateLimiter counts requests per caller in fixed Redis windows.
type RateLimiter struct {
	redis  redis.Cmdable
	limit  int64
	window time.Duration
}

func NewRateLimiter(redisClient redis.Cmdable, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: redisClient, limit: int64(limit), window: window}
}

// Allow increments the counter for id and reports whether it is still within
// the limit. The window starts on the first hit.
func (r *RateLimiter) Allow(ctx context.Context, id string) (bool, error) {
	key := fmt.Sprintf(keyPurchaseRate, id)

	count, err := r.redis.Eval(ctx, incrWindowScript, []string{key}, r.window.Milliseconds()).Int64()
	if err != nil {
		return true, fmt.Errorf("count %s: %w", key, err)
	}
	return count <= r.limit, nil
}

// PurchaseRateLimit is route middleware for the buy endpoint. Authenticated
// callers are limited by user id, others by IP. Redis errors let the request
// through.
func (r *RateLimiter) PurchaseRateLimit(e *core.RequestEvent) error {
	if r.isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
		return apis.NewForbiddenError("Access denied", nil)
	}

	var id string
	if e.Auth != nil {
		id = "user:" + e.Auth.Id
	} else {
		id = "ip:" + e.RealIP()
	}

	allowed, err := r.Allow(e.Request.Context(), id)
	if err != nil {
		slog.Warn("Rate limiter unavailable", "caller", id, "error", err)
		return e.Next()
	}
	if !allowed {
		return apis.NewTooManyRequestsError("Rate limit exceeded. Please try again later.", nil)
	}
	return e.Next()
}

func (r *RateLimiter) isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
