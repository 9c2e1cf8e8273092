// Package metrics exposes the Prometheus registry used by the sync engine.
// Metrics are defined in their respective packages (client, batch, category,
// cache, ratelimit) and registered via promauto; this package serves them
// and documents them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by the engine.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the /metrics handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - catalog_requests_total{resource, method, status} (Counter): API calls by resource, method and HTTP status
//   - catalog_request_duration_seconds{resource, method} (Histogram): API call duration
//   - catalog_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Batch Metrics (pkg/batch):
//   - catalog_batches_total{op, result} (Counter): Batches by operation and result (ok, partial, error)
//   - catalog_batch_items_total{op, result} (Counter): Batch items by result (ok, failed, unknown)
//   - catalog_batch_duration_seconds{op} (Histogram): Batch call duration
//   - catalog_batches_in_flight (Gauge): Batches currently in flight
//
// Resolver Metrics (pkg/category):
//   - catalog_categories_created_total (Counter): Categories created for missing names
//   - catalog_categories_unresolved_total (Counter): Names the store refused to create
//
// Throttle Metrics (pkg/ratelimit):
//   - catalog_throttle_wait_seconds{backend} (Histogram): Time spent waiting for a submission slot
//   - catalog_throttle_slots_total{backend} (Counter): Submission slots granted
//
// Cache Metrics (pkg/cache):
//   - catalog_cache_hits_total{backend} (Counter): Category snapshot loads served
//   - catalog_cache_misses_total (Counter): Snapshot loads that found nothing
//   - catalog_cache_entries{backend} (Gauge): Categories in the last stored snapshot
//   - catalog_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Item failure ratio
//   sum(rate(catalog_batch_items_total{result!="ok"}[5m])) /
//   sum(rate(catalog_batch_items_total[5m]))
//
//   # Rate limited calls
//   rate(catalog_errors_total{class="rate_limit"}[5m])
//
//   # P95 batch latency
//   histogram_quantile(0.95, rate(catalog_batch_duration_seconds_bucket[5m]))
//
//   # Throttle pressure
//   rate(catalog_throttle_wait_seconds_sum[5m])
