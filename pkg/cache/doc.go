// Package cache mirrors category snapshots (name to id) into Redis so that
// read-only commands and later runs can list a store's categories without
// enumerating the remote API.
//
// The mirror is write-through: the resolver stores the snapshot after a
// prefetch and adds each category it creates. A snapshot is advisory only.
// A sync run always prefetches from the API and never resolves names from
// the mirror.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, 24*time.Hour)
//	key := cache.SnapshotKey("https://shop.example.com")
//
//	snap, err := manager.Load(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// No snapshot yet: enumerate the API
//	}
//
// # Metrics
//
//   - catalog_cache_hits_total{backend} - Snapshot loads served
//   - catalog_cache_misses_total - Snapshot loads that found nothing
//   - catalog_cache_entries{backend} - Categories in the last stored snapshot
//   - catalog_cache_errors_total{operation} - Cache operation errors
package cache
