// Package engine runs bulk catalog synchronization flows.
//
// Every flow follows the same shape: enumerate or read the input, resolve
// category references once, build or classify payloads without network
// access, chunk them and dispatch the batches through a bounded, throttled
// worker pool. A batch that fails is recorded in the run Summary and the
// remaining batches still run.
package engine

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/catalog-sync/pkg/batch"
	"github.com/Sternrassler/catalog-sync/pkg/cache"
	"github.com/Sternrassler/catalog-sync/pkg/catalog"
	"github.com/Sternrassler/catalog-sync/pkg/category"
	"github.com/Sternrassler/catalog-sync/pkg/client"
	"github.com/Sternrassler/catalog-sync/pkg/pagination"
	"github.com/Sternrassler/catalog-sync/pkg/ratelimit"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Engine wires the sync components for one store.
type Engine struct {
	config     Config
	client     *client.Client
	enum       *pagination.Enumerator
	resolver   *category.Resolver
	dispatcher *batch.Dispatcher
	logger     zerolog.Logger

	throttle   ratelimit.Throttle
	mirror     cache.Mirror
	httpClient *http.Client
}

// Option configures an Engine.
type Option func(*Engine)

// WithThrottle replaces the in-process interval throttle, for example with
// a ratelimit.RedisThrottle shared by several processes.
func WithThrottle(t ratelimit.Throttle) Option {
	return func(e *Engine) { e.throttle = t }
}

// WithMirror writes category snapshots through to m.
func WithMirror(m cache.Mirror) Option {
	return func(e *Engine) { e.mirror = m }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.httpClient = c }
}

// New validates cfg and builds an engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config: cfg,
		logger: log.With().Str("component", "engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	clientCfg := client.DefaultConfig(cfg.BaseURL, cfg.ConsumerKey, cfg.ConsumerSecret)
	if cfg.Timeout > 0 {
		clientCfg.Timeout = cfg.Timeout
	}
	c, err := client.New(clientCfg)
	if err != nil {
		return nil, err
	}
	if e.httpClient != nil {
		c.SetHTTPClient(e.httpClient)
	}
	e.client = c

	e.enum = pagination.NewEnumerator(c, pagination.Config{PageSize: cfg.PageSize})

	resolverOpts := []category.Option{
		category.WithLogger(log.With().Str("component", "resolver").Str("store", cfg.BaseURL).Logger()),
	}
	if e.mirror != nil {
		resolverOpts = append(resolverOpts, category.WithMirror(e.mirror, cache.SnapshotKey(cfg.BaseURL)))
	}
	e.resolver = category.New(c, e.enum, resolverOpts...)

	if e.throttle == nil {
		if cfg.Throttle > 0 {
			e.throttle = ratelimit.NewInterval(cfg.Throttle)
		} else {
			e.throttle = ratelimit.None{}
		}
	}
	e.dispatcher = batch.NewDispatcher(batch.Config{
		MaxWorkers: cfg.MaxWorkers,
		Throttle:   e.throttle,
	})

	return e, nil
}

// Client returns the underlying API client.
func (e *Engine) Client() *client.Client { return e.client }

// Resolver returns the run's category resolver.
func (e *Engine) Resolver() *category.Resolver { return e.resolver }

// Categories lists every category of the store.
func (e *Engine) Categories(ctx context.Context) ([]catalog.Category, error) {
	return pagination.EnumerateAs[catalog.Category](ctx, e.enum, catalog.ResourceCategories, nil)
}

// productsIn enumerates the products linked to category id.
func (e *Engine) productsIn(ctx context.Context, categoryID int) ([]catalog.Product, error) {
	filters := url.Values{"category": []string{strconv.Itoa(categoryID)}}
	return pagination.EnumerateAs[catalog.Product](ctx, e.enum, catalog.ResourceProducts, filters)
}

// dispatch chunks items and sends them to resource, appending the outcomes
// to sum in batch order.
func dispatch[T any](ctx context.Context, e *Engine, sum *Summary, resource string, op catalog.Op, items []T) {
	if len(items) == 0 {
		return
	}

	batches := batch.Chunk(items, e.config.BatchSize, op)
	e.logger.Info().
		Str("resource", resource).
		Str("op", string(op)).
		Int("items", len(items)).
		Int("batches", len(batches)).
		Msg("Dispatching batches")

	outcomes := batch.DispatchAll(ctx, e.dispatcher, batches, submitter[T](e.client, resource))
	batch.SortByIndex(outcomes)
	sum.Outcomes = append(sum.Outcomes, outcomes...)
}

// submitter encodes a batch and posts it to the resource's batch endpoint.
func submitter[T any](c *client.Client, resource string) batch.Submitter[T] {
	return func(ctx context.Context, b batch.Batch[T]) ([]batch.ItemResult, error) {
		req, err := catalog.NewBatchRequest(b.Op, b.Items)
		if err != nil {
			return nil, err
		}
		resp, err := c.DispatchBatch(ctx, resource, req)
		if err != nil {
			return nil, err
		}
		return batch.FromResponse(resp, b.Op), nil
	}
}

func (e *Engine) start(flow string) *Summary {
	e.logger.Info().Str("flow", flow).Msg("Run started")
	return &Summary{Flow: flow, Started: time.Now()}
}

func (e *Engine) finish(sum *Summary) *Summary {
	sum.Duration = time.Since(sum.Started)
	sum.Log(e.logger)
	return sum
}
