// Package ratelimit protects the shared portal service keys: a per-key
// requests-per-minute window smooths bursts before they reach the portal,
// and a daily quota tracker stops the gateway from burning an endpoint's
// portal-issued call budget. Both counters live in Redis and fail open,
// so a Redis outage degrades to unlimited rather than an outage.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of a window check.
type Decision struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter admits requests through a sliding window counted in a Redis
// sorted set, one set per (dimension, key). A nil Redis client admits
// everything.
type Limiter struct {
	rdb *redis.Client
}

func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

// windowScript trims entries that fell out of the window, admits the
// request if the window is under the limit, and reports the oldest
// surviving timestamp so the caller can tell exactly when a slot frees.
// KEYS[1] window set; ARGV: window start ms, now ms, limit, ttl ms, member.
// Returns {count after the call, 1 admitted / 0 denied, oldest entry ms}.
var windowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
local admitted = 0
if count < tonumber(ARGV[3]) then
    redis.call('ZADD', KEYS[1], ARGV[2], ARGV[5])
    count = count + 1
    admitted = 1
end
redis.call('PEXPIRE', KEYS[1], ARGV[4])
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local oldest_ms = 0
if oldest[2] then
    oldest_ms = tonumber(oldest[2])
end
return {count, admitted, oldest_ms}
`)

// Allow checks and, when under the limit, consumes one slot of the window
// identified by dimension and key. The dimension ("rpm") keeps window
// namespaces apart and matches the label the rejection metric carries.
func (l *Limiter) Allow(ctx context.Context, dimension, key string, limit int64, window time.Duration) (Decision, error) {
	now := time.Now()
	if l.rdb == nil {
		return Decision{Allowed: true, Remaining: limit - 1, ResetAt: now.Add(window)}, nil
	}

	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + strconv.FormatUint(rand.Uint64(), 36)

	result, err := windowScript.Run(ctx, l.rdb,
		[]string{"kdata:rl:" + dimension + ":" + key},
		now.Add(-window).UnixMilli(),
		nowMs,
		limit,
		window.Milliseconds()+1000,
		member,
	).Int64Slice()
	if err != nil || len(result) != 3 {
		// Fail open on Redis errors
		return Decision{Allowed: true, Remaining: limit, ResetAt: now.Add(window)}, nil
	}

	count, admitted, oldestMs := result[0], result[1] == 1, result[2]

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	// The window frees a slot when its oldest entry expires.
	resetAt := now.Add(window)
	if oldestMs > 0 {
		resetAt = time.UnixMilli(oldestMs).Add(window)
	}

	d := Decision{Allowed: admitted, Remaining: remaining, ResetAt: resetAt}
	if !admitted {
		d.RetryAfter = resetAt.Sub(now)
		if d.RetryAfter < time.Second {
			d.RetryAfter = time.Second
		}
	}
	return d, nil
}
