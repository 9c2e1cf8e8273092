package cache

import (
	"sort"
	"time"
)

// Snapshot is a point-in-time copy of a store's category names and ids.
type Snapshot struct {
	// Categories maps category name to id.
	Categories map[string]int `json:"categories"`

	// FetchedAt is when the snapshot was last refreshed from the API.
	FetchedAt time.Time `json:"fetched_at"`
}

// NewSnapshot copies categories into a snapshot stamped with the current time.
func NewSnapshot(categories map[string]int) *Snapshot {
	cp := make(map[string]int, len(categories))
	for name, id := range categories {
		cp[name] = id
	}
	return &Snapshot{Categories: cp, FetchedAt: time.Now()}
}

// Age returns how long ago the snapshot was fetched.
func (s *Snapshot) Age() time.Duration {
	return time.Since(s.FetchedAt)
}

// IsStale reports whether the snapshot is older than maxAge.
// A zero maxAge never goes stale.
func (s *Snapshot) IsStale(maxAge time.Duration) bool {
	return maxAge > 0 && s.Age() > maxAge
}

// Names returns the category names sorted alphabetically.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Categories))
	for name := range s.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
