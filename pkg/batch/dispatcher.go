package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/catalog-sync/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Prometheus metrics for batch dispatch.
var (
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_batches_total",
		Help: "Total dispatched batches by operation and result",
	}, []string{"op", "result"})

	batchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_batch_items_total",
		Help: "Total batch items by operation and result",
	}, []string{"op", "result"})

	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_batch_duration_seconds",
		Help:    "Batch call duration in seconds by operation",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"op"})

	batchesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_batches_in_flight",
		Help: "Number of batch calls currently in flight",
	})
)

// Config holds dispatcher configuration.
type Config struct {
	// MaxWorkers is the maximum number of batches in flight.
	MaxWorkers int

	// Throttle gates every submission; successive batches enter flight at
	// most as fast as it allows. Nil means no throttling.
	Throttle ratelimit.Throttle
}

// Submitter sends one batch and returns the per-item results.
type Submitter[T any] func(ctx context.Context, b Batch[T]) ([]ItemResult, error)

// Dispatcher runs batches through a bounded worker pool.
type Dispatcher struct {
	config Config
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(config Config) *Dispatcher {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 1
	}
	if config.Throttle == nil {
		config.Throttle = ratelimit.None{}
	}
	return &Dispatcher{
		config: config,
		logger: log.With().Str("component", "dispatcher").Logger(),
	}
}

// DispatchAll submits every batch and returns one Outcome per batch in
// completion order. A failing batch is recorded and never stops the rest.
// If ctx is cancelled, batches not yet submitted are recorded as failed
// with the context error.
func DispatchAll[T any](ctx context.Context, d *Dispatcher, batches []Batch[T], submit Submitter[T]) []Outcome {
	if len(batches) == 0 {
		return nil
	}

	start := time.Now()
	results := make(chan Outcome, len(batches))

	var g errgroup.Group
	g.SetLimit(d.config.MaxWorkers)

	for _, b := range batches {
		g.Go(func() error {
			results <- dispatchOne(ctx, d, b, submit)
			return nil
		})
	}

	outcomes := make([]Outcome, 0, len(batches))
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range results {
			outcomes = append(outcomes, o)
		}
	}()

	_ = g.Wait()
	close(results)
	<-collected

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	d.logger.Info().
		Int("batches", len(batches)).
		Int("failed_batches", failed).
		Int("workers", d.config.MaxWorkers).
		Dur("duration", time.Since(start)).
		Msg("Dispatch complete")

	return outcomes
}

// dispatchOne waits for a throttle slot, submits the batch and records its
// outcome. Panics in submit are converted into a batch error.
func dispatchOne[T any](ctx context.Context, d *Dispatcher, b Batch[T], submit Submitter[T]) (out Outcome) {
	out = Outcome{Index: b.Index, Op: b.Op, Submitted: b.Len()}
	op := string(b.Op)

	err := ctx.Err()
	if err == nil {
		err = d.config.Throttle.Wait(ctx)
	}
	if err != nil {
		out.Err = fmt.Errorf("%s batch #%d not submitted: %w", b.Op, b.Index, err)
		d.record(out)
		return out
	}

	start := time.Now()
	batchesInFlight.Inc()
	defer func() {
		batchesInFlight.Dec()
		out.Duration = time.Since(start)
		batchDuration.WithLabelValues(op).Observe(out.Duration.Seconds())
		d.record(out)
	}()

	defer func() {
		if r := recover(); r != nil {
			out.Items = nil
			out.Err = fmt.Errorf("%s batch #%d panicked: %v", b.Op, b.Index, r)
		}
	}()

	items, err := submit(ctx, b)
	if err != nil {
		out.Err = err
		return out
	}
	out.Items = items
	return out
}

// record logs the outcome and updates metrics.
func (d *Dispatcher) record(o Outcome) {
	op := string(o.Op)

	switch {
	case o.Err != nil:
		batchesTotal.WithLabelValues(op, "error").Inc()
		batchItemsTotal.WithLabelValues(op, "unknown").Add(float64(o.Submitted))
		d.logger.Error().
			Err(o.Err).
			Str("op", op).
			Int("batch", o.Index).
			Int("items", o.Submitted).
			Msg("Batch failed")
		return
	case o.OK():
		batchesTotal.WithLabelValues(op, "ok").Inc()
	default:
		batchesTotal.WithLabelValues(op, "partial").Inc()
	}

	batchItemsTotal.WithLabelValues(op, "ok").Add(float64(o.Succeeded()))
	batchItemsTotal.WithLabelValues(op, "failed").Add(float64(o.Failed()))
	batchItemsTotal.WithLabelValues(op, "unknown").Add(float64(o.Unknown()))

	event := d.logger.Info()
	msg := "Batch dispatched"
	if !o.OK() {
		event = d.logger.Warn().AnErr("failure", o.Failure())
		msg = "Batch dispatched with item failures"
	}
	event.
		Str("op", op).
		Int("batch", o.Index).
		Int("succeeded", o.Succeeded()).
		Int("failed", o.Failed()).
		Dur("duration", o.Duration).
		Msg(msg)
}
