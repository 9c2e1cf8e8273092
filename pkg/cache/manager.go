package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates no snapshot is stored under the key
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored snapshot is corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Mirror stores category snapshots.
type Mirror interface {
	// Load returns the snapshot under key or ErrCacheMiss.
	Load(ctx context.Context, key string) (*Snapshot, error)

	// Store replaces the snapshot under key.
	Store(ctx context.Context, key string, snap *Snapshot) error

	// Put adds or updates one category in an existing snapshot.
	Put(ctx context.Context, key, name string, id int) error

	// Delete removes the snapshot under key.
	Delete(ctx context.Context, key string) error
}

var (
	_ Mirror = (*Manager)(nil)
	_ Mirror = (*Memory)(nil)
)

const fetchedAtField = "fetched_at"

// Manager is a Mirror backed by a Redis hash per store.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewManager creates a Redis-backed mirror. Snapshots expire after ttl;
// a zero ttl keeps them until replaced.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Load reads the snapshot hash and its metadata.
func (m *Manager) Load(ctx context.Context, key string) (*Snapshot, error) {
	fields, err := m.redis.HGetAll(ctx, key).Result()
	if err != nil {
		CacheErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	fetched, err := m.redis.HGet(ctx, metaKey(key), fetchedAtField).Result()
	if errors.Is(err, redis.Nil) {
		// metadata is written in the same transaction as the hash, so a
		// missing meta key means no snapshot at all
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}
	if err != nil {
		CacheErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	snap := &Snapshot{Categories: make(map[string]int, len(fields))}
	nanos, err := strconv.ParseInt(fetched, 10, 64)
	if err != nil {
		CacheErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("%w: fetched_at %q", ErrInvalidEntry, fetched)
	}
	snap.FetchedAt = time.Unix(0, nanos)

	for name, raw := range fields {
		id, err := strconv.Atoi(raw)
		if err != nil {
			CacheErrors.WithLabelValues("load").Inc()
			return nil, fmt.Errorf("%w: category %q has id %q", ErrInvalidEntry, name, raw)
		}
		snap.Categories[name] = id
	}

	CacheHits.WithLabelValues("redis").Inc()
	return snap, nil
}

// Store atomically replaces the snapshot hash and its metadata.
func (m *Manager) Store(ctx context.Context, key string, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	values := make(map[string]any, len(snap.Categories))
	for name, id := range snap.Categories {
		values[name] = id
	}

	_, err := m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key, metaKey(key))
		if len(values) > 0 {
			pipe.HSet(ctx, key, values)
		}
		pipe.HSet(ctx, metaKey(key), fetchedAtField, snap.FetchedAt.UnixNano())
		if m.ttl > 0 {
			pipe.Expire(ctx, key, m.ttl)
			pipe.Expire(ctx, metaKey(key), m.ttl)
		}
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("store").Inc()
		return fmt.Errorf("redis store snapshot: %w", err)
	}

	CacheEntries.WithLabelValues("redis").Set(float64(len(snap.Categories)))
	return nil
}

// Put adds one category to the snapshot hash. It is a no-op when no
// snapshot exists, so a partial hash is never mistaken for a full one.
func (m *Manager) Put(ctx context.Context, key, name string, id int) error {
	exists, err := m.redis.Exists(ctx, metaKey(key)).Result()
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis exists: %w", err)
	}
	if exists == 0 {
		return nil
	}

	if err := m.redis.HSet(ctx, key, name, id).Err(); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// Delete removes the snapshot.
func (m *Manager) Delete(ctx context.Context, key string) error {
	if err := m.redis.Del(ctx, key, metaKey(key)).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Memory is an in-process Mirror, used when no Redis is configured.
type Memory struct {
	mu    sync.RWMutex
	snaps map[string]*Snapshot
}

// NewMemory creates an empty in-process mirror.
func NewMemory() *Memory {
	return &Memory{snaps: make(map[string]*Snapshot)}
}

// Load returns a copy of the stored snapshot.
func (m *Memory) Load(_ context.Context, key string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snaps[key]
	if !ok {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}
	CacheHits.WithLabelValues("memory").Inc()

	cp := NewSnapshot(snap.Categories)
	cp.FetchedAt = snap.FetchedAt
	return cp, nil
}

// Store replaces the snapshot with a copy of snap.
func (m *Memory) Store(_ context.Context, key string, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	cp := NewSnapshot(snap.Categories)
	cp.FetchedAt = snap.FetchedAt

	m.mu.Lock()
	m.snaps[key] = cp
	m.mu.Unlock()

	CacheEntries.WithLabelValues("memory").Set(float64(len(cp.Categories)))
	return nil
}

// Put adds one category to an existing snapshot.
func (m *Memory) Put(_ context.Context, key, name string, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if snap, ok := m.snaps[key]; ok {
		snap.Categories[name] = id
	}
	return nil
}

// Delete removes the snapshot.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.snaps, key)
	m.mu.Unlock()
	return nil
}
