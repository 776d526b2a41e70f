package types

import (
	"context"
	"time"

	"github.com/mcuadros/go-defaults"
)

/**
 * ReportSink receives evaluated events in batches. Submission is
 * best-effort from the caller's perspective: the dispatcher retries on
 * RetryError, drops on FatalError, and never blocks an Ensure call.
 */
type ReportSink interface {
	Submit(ctx context.Context, batch []*Event) error
}

func NewOptions() *Options {
	opts := &Options{Ctx: context.Background()}
	defaults.SetDefaults(opts)
	return opts
}

type Options struct {
	Ctx context.Context

	/**
	 * Reporting contract of the external tracking backend. Passed
	 * through unchanged; when Endpoint is empty and no sink is set,
	 * evaluated events are discarded after being recorded.
	 */
	APIKey   string
	Endpoint string
	/**
	 * default: 50
	 * a report batch is flushed as soon as it reaches this size.
	 */
	BatchSize int `default:"50"`
	/**
	 * default: 5s
	 * partial batches are flushed at this interval.
	 */
	BatchInterval time.Duration `default:"5s"`
	/**
	 * default: 10000
	 * evaluated events queued beyond this bound are dropped with a
	 * warning instead of blocking the caller.
	 */
	MaxQueueSize int `default:"10000"`
	/**
	 * default: 4
	 * delivery worker goroutines.
	 */
	DeliveryWorkers int `default:"4"`
	/**
	 * default: 3
	 * delivery attempts per batch before the batch is dropped.
	 */
	MaxDeliveryRetries int `default:"3"`
	/**
	 * default: 1s
	 * backoff between delivery attempts when the sink does not ask for
	 * a specific one.
	 */
	DeliveryBackoff time.Duration `default:"1s"`

	/**
	 * default: false, only set it to true when doing testing or developing.
	 */
	MemStore bool `default:"false"`

	// PostgreSQL store configuration
	// If both MemStore and PostgresConfig are set, PostgresConfig takes precedence
	PostgresConfig *PostgresConfig

	// Sink overrides the endpoint-derived report sink when set.
	Sink ReportSink
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // disable, require, verify-ca, verify-full
}

type Option func(*Options)

func WithContext(ctx context.Context) Option {
	return func(opts *Options) {
		opts.Ctx = ctx
	}
}

func WithAPIKey(key string) Option {
	return func(opts *Options) {
		opts.APIKey = key
	}
}

func WithEndpoint(endpoint string) Option {
	return func(opts *Options) {
		opts.Endpoint = endpoint
	}
}

func SetBatchSize(size int) Option {
	return func(opts *Options) {
		opts.BatchSize = size
	}
}

func SetBatchInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.BatchInterval = interval
	}
}

func SetMaxQueueSize(size int) Option {
	return func(opts *Options) {
		opts.MaxQueueSize = size
	}
}

func EnableMemStore() Option {
	return func(opts *Options) {
		opts.MemStore = true
	}
}

// WithPostgresConfig configures the engine to use the PostgreSQL store
func WithPostgresConfig(config *PostgresConfig) Option {
	return func(opts *Options) {
		opts.PostgresConfig = config
	}
}

func WithSink(sink ReportSink) Option {
	return func(opts *Options) {
		opts.Sink = sink
	}
}
