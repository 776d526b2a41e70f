package checkpoint

import (
	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/warriorguo/checkpoint/runtime"
	"github.com/warriorguo/checkpoint/sink"
	"github.com/warriorguo/checkpoint/store"
	"github.com/warriorguo/checkpoint/store/mem"
	"github.com/warriorguo/checkpoint/store/postgres"
	"github.com/warriorguo/checkpoint/types"
)

// New creates a new checkpoint engine with the given options
func New(opts ...types.Option) (types.Engine, error) {
	options := types.NewOptions()
	for _, opt := range opts {
		opt(options)
	}

	var s store.Store
	var err error

	// PostgresConfig takes precedence over MemStore
	if options.PostgresConfig != nil {
		pgConfig := &postgres.Config{
			Host:     options.PostgresConfig.Host,
			Port:     options.PostgresConfig.Port,
			User:     options.PostgresConfig.User,
			Password: options.PostgresConfig.Password,
			Database: options.PostgresConfig.Database,
			SSLMode:  options.PostgresConfig.SSLMode,
		}

		s, err = postgres.NewPostgresStore(pgConfig)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to create PostgreSQL store")
		}
	} else {
		// Default to mem store if not specified
		s = mem.NewMemStore()
	}

	reportSink := options.Sink
	if reportSink == nil {
		if options.Endpoint != "" {
			config := sink.DefaultHTTPConfig()
			config.Endpoint = options.Endpoint
			config.APIKey = options.APIKey
			reportSink, err = sink.NewHTTPSink(config)
			if err != nil {
				return nil, errors.Annotatef(err, "failed to create report sink")
			}
		} else {
			reportSink = sink.NewDiscardSink()
		}
	}

	return runtime.NewEngine(s, reportSink, options), nil
}

/**
 * NewRunID returns a fresh run identifier for one logical business
 * transaction. Callers with a natural key (cart id, order id) should
 * prefer that, the requirement is only that the id stays stable across
 * every ensure call of the transaction.
 */
func NewRunID() string {
	return uuid.NewString()
}
