package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/Sternrassler/catalog-sync/pkg/cache"
	"github.com/Sternrassler/catalog-sync/pkg/engine"
	"github.com/Sternrassler/catalog-sync/pkg/logging"
	"github.com/Sternrassler/catalog-sync/pkg/metrics"
	"github.com/Sternrassler/catalog-sync/pkg/ratelimit"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Environment variables read when the matching flag is not set.
const (
	envURL            = "CATALOG_URL"
	envConsumerKey    = "CATALOG_CONSUMER_KEY"
	envConsumerSecret = "CATALOG_CONSUMER_SECRET"
	envRedisURL       = "REDIS_URL"
	envLogLevel       = "LOG_LEVEL"
)

// snapshotTTL bounds how long a mirrored category snapshot is kept.
const snapshotTTL = 24 * time.Hour

type options struct {
	envFile string

	baseURL        string
	consumerKey    string
	consumerSecret string

	maxWorkers int
	batchSize  int
	pageSize   int
	throttle   time.Duration
	timeout    time.Duration

	redisURL    string
	metricsAddr string
	logLevel    string
	pretty      bool
	report      string
}

// app holds what a subcommand needs once flags are resolved.
type app struct {
	opts   options
	logger zerolog.Logger

	redis       *redis.Client
	mirror      cache.Mirror
	stopMetrics context.CancelFunc
}

// run executes the command line in args and releases every resource the
// command opened, whether or not it failed.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{}
	defer a.close()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func (a *app) rootCmd() *cobra.Command {
	defaults := engine.DefaultConfig("", "", "")

	root := &cobra.Command{
		Use:   "catalog-sync",
		Short: "Bulk create, update, hide and delete store products",
		Long: `catalog-sync mutates a store's product catalog through its batch API.

Products are enumerated page by page, category names are resolved once per
run, and mutations are sent in bounded batches through a throttled worker
pool. A failed batch never stops the others; every run ends with a summary
and, with --report, a CSV of every item's result.

Credentials come from flags or the environment (CATALOG_URL,
CATALOG_CONSUMER_KEY, CATALOG_CONSUMER_SECRET), optionally loaded from a
.env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return a.init(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.opts.envFile, "env-file", ".env", "dotenv file to load if present")
	f.StringVar(&a.opts.baseURL, "url", "", "store base URL (env "+envURL+")")
	f.StringVar(&a.opts.consumerKey, "consumer-key", "", "REST API consumer key (env "+envConsumerKey+")")
	f.StringVar(&a.opts.consumerSecret, "consumer-secret", "", "REST API consumer secret (env "+envConsumerSecret+")")
	f.IntVarP(&a.opts.maxWorkers, "workers", "w", defaults.MaxWorkers, "maximum batches in flight")
	f.IntVarP(&a.opts.batchSize, "batch-size", "b", defaults.BatchSize, "items per batch (max 100)")
	f.IntVar(&a.opts.pageSize, "page-size", defaults.PageSize, "items per enumeration page (max 100)")
	f.DurationVar(&a.opts.throttle, "throttle", defaults.Throttle, "minimum interval between batch submissions")
	f.DurationVar(&a.opts.timeout, "timeout", defaults.Timeout, "per-call network timeout")
	f.StringVar(&a.opts.redisURL, "redis-url", "", "Redis URL for a shared throttle and category mirror (env "+envRedisURL+")")
	f.StringVar(&a.opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	f.StringVar(&a.opts.logLevel, "log-level", "info", "log level: debug, info, warn, error, disabled (env "+envLogLevel+")")
	f.BoolVar(&a.opts.pretty, "pretty", false, "human-readable console logs")
	f.StringVar(&a.opts.report, "report", "", "write a CSV report of item results to this file")

	root.AddCommand(
		newFeedCmd(a),
		newUnlinkCmd(a),
		newPurgeCmd(a),
		newDeleteCmd(a),
		newDetachCmd(a),
		newHideCmd(a),
		newCategoriesCmd(a),
	)
	return root
}

// init loads the dotenv file, fills unset flags from the environment and
// starts logging, metrics and Redis.
func (a *app) init(cmd *cobra.Command) error {
	if err := godotenv.Load(a.opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", a.opts.envFile, err)
	}

	flags := cmd.Flags()
	fromEnv := func(flag, env string, dst *string) {
		if !flags.Changed(flag) {
			if v := os.Getenv(env); v != "" {
				*dst = v
			}
		}
	}
	fromEnv("url", envURL, &a.opts.baseURL)
	fromEnv("consumer-key", envConsumerKey, &a.opts.consumerKey)
	fromEnv("consumer-secret", envConsumerSecret, &a.opts.consumerSecret)
	fromEnv("redis-url", envRedisURL, &a.opts.redisURL)
	fromEnv("log-level", envLogLevel, &a.opts.logLevel)

	level, err := logging.ParseLevel(a.opts.logLevel)
	if err != nil {
		return err
	}
	logging.Setup(logging.Config{Level: level, Pretty: a.opts.pretty, Output: cmd.ErrOrStderr()})
	a.logger = logging.NewLogger("cli")

	ctx := cmd.Context()
	if a.opts.metricsAddr != "" {
		mctx, cancel := context.WithCancel(ctx)
		a.stopMetrics = cancel
		go func() {
			if err := metrics.Serve(mctx, a.opts.metricsAddr); err != nil {
				a.logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	if a.opts.redisURL != "" {
		redisOpts, err := redis.ParseURL(a.opts.redisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(redisOpts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.mirror = cache.NewManager(a.redis, snapshotTTL)
		a.logger.Info().Str("addr", redisOpts.Addr).Msg("Connected to Redis")
	}
	return nil
}

func (a *app) close() {
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func (a *app) config() engine.Config {
	return engine.Config{
		BaseURL:        a.opts.baseURL,
		ConsumerKey:    a.opts.consumerKey,
		ConsumerSecret: a.opts.consumerSecret,
		MaxWorkers:     a.opts.maxWorkers,
		BatchSize:      a.opts.batchSize,
		PageSize:       a.opts.pageSize,
		Throttle:       a.opts.throttle,
		Timeout:        a.opts.timeout,
	}
}

// newEngine builds the run's engine. With Redis configured the throttle is
// shared per account across processes and categories are mirrored.
func (a *app) newEngine() (*engine.Engine, error) {
	cfg := a.config()

	var opts []engine.Option
	if a.redis != nil {
		if cfg.Throttle > 0 {
			key := ratelimit.AccountKey(cfg.BaseURL, cfg.ConsumerKey)
			opts = append(opts, engine.WithThrottle(ratelimit.NewRedisThrottle(a.redis, key, cfg.Throttle, a.logger)))
		}
		opts = append(opts, engine.WithMirror(a.mirror))
	}
	return engine.New(cfg, opts...)
}
