// Package ratelimit gates how fast mutation batches enter flight.
// A Throttle enforces a minimum interval between successive submissions
// to the same store account, either within one process (Interval) or
// across every process sharing a Redis instance (RedisThrottle).
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// RedisKeyPrefix namespaces throttle slots in Redis.
const RedisKeyPrefix = "catalog:throttle:"

// Throttle blocks until the caller may submit the next batch.
type Throttle interface {
	Wait(ctx context.Context) error
}

// None is a Throttle that never waits.
type None struct{}

// Wait implements Throttle.
func (None) Wait(ctx context.Context) error { return ctx.Err() }

// AccountKey derives the Redis key for a store account. The consumer key is
// hashed so credentials never appear in Redis.
func AccountKey(baseURL, consumerKey string) string {
	sum := sha256.Sum256([]byte(strings.TrimRight(baseURL, "/") + "|" + consumerKey))
	return RedisKeyPrefix + hex.EncodeToString(sum[:8])
}

// Slot describes one granted submission slot.
type Slot struct {
	// GrantedAt is when the caller was allowed to proceed.
	GrantedAt time.Time
	// Waited is how long the caller was held back.
	Waited time.Duration
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
