// Package category resolves category names to server ids with
// create-if-missing semantics.
//
// A Resolver owns the name to id map for one synchronization run. The map
// is filled by Prefetch and extended by Resolve, both of which run before
// any payload is built. After that the map is only read, so payload
// building never touches the network and concurrent builders cannot race
// to create the same category.
package category

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sternrassler/catalog-sync/pkg/batch"
	"github.com/Sternrassler/catalog-sync/pkg/cache"
	"github.com/Sternrassler/catalog-sync/pkg/catalog"
	"github.com/Sternrassler/catalog-sync/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	categoriesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_categories_created_total",
		Help: "Total categories created by the resolver",
	})

	categoriesUnresolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_categories_unresolved_total",
		Help: "Total category names the server refused to create",
	})
)

// BatchSender submits one batch request. *client.Client implements it.
type BatchSender interface {
	DispatchBatch(ctx context.Context, resource string, req catalog.BatchRequest) (*catalog.BatchResponse, error)
}

// UnresolvedReference reports a category name that could not be created.
// Payloads referencing it omit the category.
type UnresolvedReference struct {
	Name string
	Err  error
}

func (e *UnresolvedReference) Error() string {
	return fmt.Sprintf("category %q unresolved: %v", e.Name, e.Err)
}

func (e *UnresolvedReference) Unwrap() error {
	return e.Err
}

// errNoResult marks a name the server response did not answer.
var errNoResult = errors.New("no result in create response")

// Option configures a Resolver.
type Option func(*Resolver)

// WithMirror writes the resolved map through to m under key.
func WithMirror(m cache.Mirror, key string) Option {
	return func(r *Resolver) {
		r.mirror = m
		r.mirrorKey = key
	}
}

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// Resolver maps category names to ids for one run.
type Resolver struct {
	sender BatchSender
	enum   *pagination.Enumerator

	mu         sync.RWMutex
	ids        map[string]int
	unresolved map[string]*UnresolvedReference

	mirror    cache.Mirror
	mirrorKey string
	logger    zerolog.Logger
}

// New creates a resolver with an empty map.
func New(sender BatchSender, enum *pagination.Enumerator, opts ...Option) *Resolver {
	r := &Resolver{
		sender:     sender,
		enum:       enum,
		ids:        make(map[string]int),
		unresolved: make(map[string]*UnresolvedReference),
		logger:     log.With().Str("component", "resolver").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Prefetch replaces the map with the full remote category collection. When
// two categories share a name the later one in server order wins.
func (r *Resolver) Prefetch(ctx context.Context) error {
	categories, err := pagination.EnumerateAs[catalog.Category](ctx, r.enum, catalog.ResourceCategories, nil)
	if err != nil {
		return fmt.Errorf("prefetch categories: %w", err)
	}

	ids := make(map[string]int, len(categories))
	for _, c := range categories {
		ids[c.PlainName()] = c.ID
	}

	r.mu.Lock()
	r.ids = ids
	r.unresolved = make(map[string]*UnresolvedReference)
	r.mu.Unlock()

	r.logger.Info().Int("categories", len(ids)).Msg("Categories prefetched")

	if r.mirror != nil {
		if err := r.mirror.Store(ctx, r.mirrorKey, cache.NewSnapshot(ids)); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to mirror category snapshot")
		}
	}
	return nil
}

// Resolve ensures every name has an id, creating the missing ones in a
// single create batch (split only when more than batch.MaxSize names are
// missing). It returns the ids of the requested names that are known
// afterwards. Names the server refused are left out and recorded as
// UnresolvedReference. A transport or API failure of the create call is
// returned as an error.
func (r *Resolver) Resolve(ctx context.Context, names []string) (map[string]int, error) {
	missing := r.missing(names)
	if len(missing) > 0 {
		if err := r.create(ctx, missing); err != nil {
			return nil, err
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(names))
	for _, name := range names {
		if id, ok := r.ids[name]; ok {
			out[name] = id
		}
	}
	return out, nil
}

// ResolveRecords resolves every category name referenced by records.
func (r *Resolver) ResolveRecords(ctx context.Context, records []catalog.Record) error {
	var names []string
	for _, rec := range records {
		names = append(names, catalog.CategoryNames(rec)...)
	}
	_, err := r.Resolve(ctx, names)
	return err
}

// Lookup returns the cached id for name. It never calls the API.
func (r *Resolver) Lookup(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[name]
	return id, ok
}

// Unresolved returns the names that failed to create, in no particular order.
func (r *Resolver) Unresolved() []*UnresolvedReference {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*UnresolvedReference, 0, len(r.unresolved))
	for _, u := range r.unresolved {
		out = append(out, u)
	}
	return out
}

// Snapshot returns a copy of the current map.
func (r *Resolver) Snapshot() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.ids))
	for name, id := range r.ids {
		out[name] = id
	}
	return out
}

// Len returns the number of known categories.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

// missing returns the unknown names, deduplicated in first-seen order.
// Names that already failed in this run are not retried.
func (r *Resolver) missing(names []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(names))
	var out []string
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := r.ids[name]; ok {
			continue
		}
		if _, failed := r.unresolved[name]; failed {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (r *Resolver) create(ctx context.Context, names []string) error {
	payloads := make([]catalog.Category, len(names))
	for i, name := range names {
		payloads[i] = catalog.Category{Name: name}
	}

	for _, b := range batch.Chunk(payloads, batch.MaxSize, catalog.OpCreate) {
		req, err := catalog.NewBatchRequest(catalog.OpCreate, b.Items)
		if err != nil {
			return err
		}

		r.logger.Info().Int("names", b.Len()).Msg("Creating missing categories")
		resp, err := r.sender.DispatchBatch(ctx, catalog.ResourceCategories, req)
		if err != nil {
			return fmt.Errorf("create categories: %w", err)
		}

		r.apply(ctx, b.Items, resp.Create)
	}
	return nil
}

// apply records created ids. Response items answer request items by
// position; the server omits the name on failed items. A term_exists
// error that names the existing category resolves to that category.
func (r *Resolver) apply(ctx context.Context, requested []catalog.Category, results []catalog.BatchItem) {
	r.mu.Lock()
	resolved := make(map[string]int)
	created, existing := 0, 0
	for i, c := range requested {
		var err error
		switch {
		case i >= len(results):
			err = errNoResult
		case results[i].Error != nil:
			if id, ok := results[i].Error.ExistingID(); ok {
				r.logger.Debug().Str("category", c.Name).Int("id", id).Msg("Category already exists, using its id")
				r.ids[c.Name] = id
				resolved[c.Name] = id
				existing++
				continue
			}
			err = results[i].Error
		case results[i].ID == 0:
			err = errNoResult
		}

		if err != nil {
			u := &UnresolvedReference{Name: c.Name, Err: err}
			r.unresolved[c.Name] = u
			categoriesUnresolved.Inc()
			r.logger.Warn().Str("category", c.Name).Err(err).Msg("Category could not be created")
			continue
		}

		r.ids[c.Name] = results[i].ID
		resolved[c.Name] = results[i].ID
		created++
	}
	r.mu.Unlock()

	categoriesCreated.Add(float64(created))
	r.logger.Info().
		Int("created", created).
		Int("existing", existing).
		Int("failed", len(requested)-len(resolved)).
		Msg("Missing categories resolved")

	if r.mirror == nil {
		return
	}
	for name, id := range resolved {
		if err := r.mirror.Put(ctx, r.mirrorKey, name, id); err != nil {
			r.logger.Warn().Err(err).Str("category", name).Msg("Failed to mirror created category")
		}
	}
}
