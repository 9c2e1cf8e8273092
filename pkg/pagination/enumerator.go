package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/catalog-sync/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds enumerator configuration
type Config struct {
	// PageSize is the per_page value sent with every request (max 100)
	PageSize int
	// ProgressEvery controls how often progress is logged, in pages
	ProgressEvery int
}

// DefaultConfig returns the default enumerator configuration
func DefaultConfig() Config {
	return Config{
		PageSize:      100,
		ProgressEvery: 10,
	}
}

// PageFetcher is the interface the catalog client implements for single-page fetching
type PageFetcher interface {
	FetchPage(ctx context.Context, resource string, filters url.Values, page, perPage int) ([]json.RawMessage, error)
}

var _ PageFetcher = (*client.Client)(nil)

// PageError wraps the failure of one page request
type PageError struct {
	Resource string
	Page     int
	Err      error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("fetch %s page %d: %v", e.Resource, e.Page, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// Enumerator walks every page of a collection
type Enumerator struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewEnumerator creates a new enumerator
func NewEnumerator(fetcher PageFetcher, config Config) *Enumerator {
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = 10
	}

	return &Enumerator{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "enumerator").Logger(),
	}
}

// Enumerate returns every item of resource matching filters, in server order
func (e *Enumerator) Enumerate(ctx context.Context, resource string, filters url.Values) ([]json.RawMessage, error) {
	var all []json.RawMessage
	err := e.Each(ctx, resource, filters, func(page int, items []json.RawMessage) error {
		all = append(all, items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// Each calls fn with every non-empty page in order. An error from fn stops
// the walk and is returned unchanged.
func (e *Enumerator) Each(ctx context.Context, resource string, filters url.Values, fn func(page int, items []json.RawMessage) error) error {
	start := time.Now()
	total := 0

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return &PageError{Resource: resource, Page: page, Err: err}
		}

		items, err := e.fetcher.FetchPage(ctx, resource, filters, page, e.config.PageSize)
		if err != nil {
			e.logger.Error().
				Err(err).
				Str("resource", resource).
				Int("page", page).
				Msg("Page fetch failed, aborting enumeration")
			return &PageError{Resource: resource, Page: page, Err: err}
		}
		if len(items) == 0 {
			break
		}

		total += len(items)
		if err := fn(page, items); err != nil {
			return err
		}

		if page%e.config.ProgressEvery == 0 {
			e.logger.Info().
				Str("resource", resource).
				Int("pages", page).
				Int("items", total).
				Msg("Enumeration progress")
		}
	}

	e.logger.Info().
		Str("resource", resource).
		Int("items", total).
		Dur("duration", time.Since(start)).
		Msg("Enumeration complete")

	return nil
}

// EnumerateAs enumerates resource and decodes every item into T
func EnumerateAs[T any](ctx context.Context, e *Enumerator, resource string, filters url.Values) ([]T, error) {
	raws, err := e.Enumerate(ctx, resource, filters)
	if err != nil {
		return nil, err
	}
	items, err := client.Decode[T](raws)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", resource, err)
	}
	return items, nil
}
