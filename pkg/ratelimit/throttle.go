package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for submission throttling.
var (
	throttleWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_throttle_wait_seconds",
		Help:    "Time a batch submission waited for a throttle slot",
		Buckets: []float64{0, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"backend"})

	throttleSlotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_throttle_slots_total",
		Help: "Total number of throttle slots granted",
	}, []string{"backend"})
)

// Interval is an in-process Throttle: successive Wait calls return at
// least interval apart. Each call reserves the next free slot, so callers
// are released in arrival order.
type Interval struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
	now      func() time.Time
}

// NewInterval creates an in-process throttle.
func NewInterval(interval time.Duration) *Interval {
	return &Interval{interval: interval, now: time.Now}
}

// Wait implements Throttle.
func (t *Interval) Wait(ctx context.Context) error {
	_, err := t.Reserve(ctx)
	return err
}

// Reserve waits for the next slot and reports how long the caller waited.
func (t *Interval) Reserve(ctx context.Context) (Slot, error) {
	t.mu.Lock()
	now := t.now()
	slot := now
	if t.next.After(now) {
		slot = t.next
	}
	t.next = slot.Add(t.interval)
	t.mu.Unlock()

	wait := slot.Sub(now)
	if err := sleepCtx(ctx, wait); err != nil {
		return Slot{}, err
	}

	throttleWaitSeconds.WithLabelValues("memory").Observe(wait.Seconds())
	throttleSlotsTotal.WithLabelValues("memory").Inc()
	return Slot{GrantedAt: slot, Waited: wait}, nil
}

// RedisThrottle shares one submission interval between every process that
// throttles the same account key. A slot is a key set with NX and a TTL of
// the interval; whoever sets it may submit, everyone else waits out the TTL.
type RedisThrottle struct {
	redis    *redis.Client
	key      string
	interval time.Duration
	logger   zerolog.Logger

	// minPoll bounds how often a waiter re-checks the slot.
	minPoll time.Duration
}

// NewRedisThrottle creates a Redis-backed throttle for key (see AccountKey).
func NewRedisThrottle(redisClient *redis.Client, key string, interval time.Duration, logger zerolog.Logger) *RedisThrottle {
	return &RedisThrottle{
		redis:    redisClient,
		key:      key,
		interval: interval,
		logger:   logger,
		minPoll:  5 * time.Millisecond,
	}
}

// Wait implements Throttle.
func (t *RedisThrottle) Wait(ctx context.Context) error {
	_, err := t.Reserve(ctx)
	return err
}

// Reserve blocks until this process owns the account's next slot.
func (t *RedisThrottle) Reserve(ctx context.Context) (Slot, error) {
	start := time.Now()
	if t.interval <= 0 {
		return Slot{GrantedAt: start}, ctx.Err()
	}

	for {
		ok, err := t.redis.SetNX(ctx, t.key, start.UnixNano(), t.interval).Result()
		if err != nil {
			return Slot{}, fmt.Errorf("acquire throttle slot: %w", err)
		}
		if ok {
			waited := time.Since(start)
			throttleWaitSeconds.WithLabelValues("redis").Observe(waited.Seconds())
			throttleSlotsTotal.WithLabelValues("redis").Inc()
			if waited > t.interval {
				t.logger.Debug().
					Str("key", t.key).
					Dur("waited", waited).
					Msg("Throttle slot contended by another process")
			}
			return Slot{GrantedAt: time.Now(), Waited: waited}, nil
		}

		ttl, err := t.redis.PTTL(ctx, t.key).Result()
		if err != nil {
			return Slot{}, fmt.Errorf("read throttle slot ttl: %w", err)
		}
		if ttl < t.minPoll {
			ttl = t.minPoll
		}
		if err := sleepCtx(ctx, ttl); err != nil {
			return Slot{}, err
		}
	}
}
