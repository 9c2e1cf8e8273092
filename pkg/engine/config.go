package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/catalog-sync/pkg/batch"
)

// Defaults for Config.
const (
	DefaultMaxWorkers = 3
	DefaultBatchSize  = 80
	DefaultPageSize   = 100
	DefaultThrottle   = time.Second
	DefaultTimeout    = 30 * time.Second
)

var (
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid engine config")
)

// Config holds everything a run needs. Nothing is read interactively.
type Config struct {
	// Store URL and REST API credentials.
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string

	// MaxWorkers bounds the number of batches in flight.
	MaxWorkers int

	// BatchSize is the number of items per mutation batch, at most 100.
	BatchSize int

	// PageSize is the number of items per enumeration page, at most 100.
	PageSize int

	// Throttle is the minimum interval between batch submissions.
	// Zero disables throttling.
	Throttle time.Duration

	// Timeout is the per-call network deadline.
	Timeout time.Duration
}

// DefaultConfig returns a configuration with default tuning for the given
// store.
func DefaultConfig(baseURL, consumerKey, consumerSecret string) Config {
	return Config{
		BaseURL:        baseURL,
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		MaxWorkers:     DefaultMaxWorkers,
		BatchSize:      DefaultBatchSize,
		PageSize:       DefaultPageSize,
		Throttle:       DefaultThrottle,
		Timeout:        DefaultTimeout,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case c.ConsumerKey == "" || c.ConsumerSecret == "":
		return fmt.Errorf("%w: consumer key and secret are required", ErrInvalidConfig)
	case c.MaxWorkers < 1:
		return fmt.Errorf("%w: max workers must be at least 1, got %d", ErrInvalidConfig, c.MaxWorkers)
	case c.BatchSize < 1 || c.BatchSize > batch.MaxSize:
		return fmt.Errorf("%w: batch size must be in [1, %d], got %d", ErrInvalidConfig, batch.MaxSize, c.BatchSize)
	case c.PageSize < 1 || c.PageSize > 100:
		return fmt.Errorf("%w: page size must be in [1, 100], got %d", ErrInvalidConfig, c.PageSize)
	case c.Throttle < 0:
		return fmt.Errorf("%w: throttle must not be negative", ErrInvalidConfig)
	case c.Timeout < 0:
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}
