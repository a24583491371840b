package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// QuotaResult is the outcome of a daily quota check.
type QuotaResult struct {
	Allowed bool
	Used    int64
	Limit   int64
}

// QuotaTracker counts forwarded requests per (gateway key, endpoint) per
// UTC day in Redis. Portal service keys carry daily call quotas; burning
// one past its limit locks the whole institution out until midnight KST,
// so the gateway enforces a configured ceiling before forwarding.
type QuotaTracker struct {
	rdb *redis.Client
}

// NewQuotaTracker creates a quota tracker. If rdb is nil, all checks pass.
func NewQuotaTracker(rdb *redis.Client) *QuotaTracker {
	return &QuotaTracker{rdb: rdb}
}

func dailyQuotaKey(keyID, endpoint string) string {
	day := time.Now().UTC().Format("2006-01-02")
	return fmt.Sprintf("kdata:quota:%s:%s:%s", day, keyID, endpoint)
}

// Check reports whether the key is still under its daily quota for the
// endpoint. A limit of 0 means unlimited.
func (q *QuotaTracker) Check(ctx context.Context, keyID, endpoint string, limit int64) (QuotaResult, error) {
	if q.rdb == nil || limit <= 0 {
		return QuotaResult{Allowed: true, Limit: limit}, nil
	}

	used, err := q.rdb.Get(ctx, dailyQuotaKey(keyID, endpoint)).Int64()
	if err != nil && err != redis.Nil {
		// Fail open on Redis errors
		return QuotaResult{Allowed: true, Limit: limit}, nil
	}

	return QuotaResult{
		Allowed: used < limit,
		Used:    used,
		Limit:   limit,
	}, nil
}

// Record counts one forwarded request against the key's daily quota for
// the endpoint. The counter expires shortly after the UTC day ends.
func (q *QuotaTracker) Record(ctx context.Context, keyID, endpoint string) error {
	if q.rdb == nil {
		return nil
	}

	key := dailyQuotaKey(keyID, endpoint)
	pipe := q.rdb.Pipeline()
	pipe.Incr(ctx, key)
	now := time.Now().UTC()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	pipe.Expire(ctx, key, endOfDay.Sub(now)+time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}
