// Package setup builds the runtime components shared by streamline commands
// from a resolved config.Config.
package setup

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/papercomputeco/streamline/pkg/completion"
	"github.com/papercomputeco/streamline/pkg/config"
	"github.com/papercomputeco/streamline/pkg/credentials"
	"github.com/papercomputeco/streamline/pkg/eventstream"
	"github.com/papercomputeco/streamline/pkg/eventstream/kafka"
	"github.com/papercomputeco/streamline/pkg/eventstream/nop"
	"github.com/papercomputeco/streamline/pkg/retry"
	"github.com/papercomputeco/streamline/pkg/storage"
	"github.com/papercomputeco/streamline/pkg/storage/inmemory"
	"github.com/papercomputeco/streamline/pkg/storage/postgres"
	"github.com/papercomputeco/streamline/pkg/storage/sqlite"
)

// ClientOptions turns the client and retry sections of cfg into completion
// options. The API key is resolved from apiKey, then the configured
// environment variable, then credentials stored under configDir.
func ClientOptions(cfg *config.Config, apiKey, configDir string, log *slog.Logger) ([]completion.Option, error) {
	base, maxDelay, err := cfg.Retry.Durations()
	if err != nil {
		return nil, err
	}

	// A missing credentials file is not an error; Resolve only reads it.
	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		log.Debug("credentials store unavailable", "error", err)
		mgr = nil
	}

	key, err := credentials.Resolve(apiKey, cfg.Client.APIKeyEnv, os.LookupEnv, mgr)
	if err != nil {
		return nil, fmt.Errorf("resolving API key: %w", err)
	}

	opts := []completion.Option{
		completion.WithModel(cfg.Client.Model),
		completion.WithEndpoint(cfg.Client.Endpoint),
		completion.WithAPIKeyEnv(cfg.Client.APIKeyEnv),
		completion.WithRestartPolicy(completion.RestartPolicy(cfg.Client.RestartPolicy)),
		completion.WithMetadata(cfg.Client.IncludeMetadata()),
		completion.WithAttribution(cfg.Client.Referer, cfg.Client.Title),
		completion.WithRetryPolicy(retry.Policy{
			MaxAttempts: int(cfg.Retry.MaxAttempts), //nolint:gosec // validated by the config layer
			BaseDelay:   base,
			MaxDelay:    maxDelay,
		}),
		completion.WithLogger(log),
	}
	if key != "" {
		opts = append(opts, completion.WithAPIKey(key))
	}

	return opts, nil
}

// NewStorageDriver opens the configured storage backend.
func NewStorageDriver(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Driver, error) {
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		if cfg.Storage.SQLitePath == "" {
			return nil, fmt.Errorf("storage.sqlite_path is required for the %s driver", config.StorageSQLite)
		}
		driver, err := sqlite.NewDriver(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		log.Info("using SQLite storage", "path", cfg.Storage.SQLitePath)
		return driver, nil

	case config.StoragePostgres:
		if cfg.Storage.PostgresDSN == "" {
			return nil, fmt.Errorf("storage.postgres_dsn is required for the %s driver", config.StoragePostgres)
		}
		driver, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		log.Info("using PostgreSQL storage")
		return driver, nil

	case config.StorageMemory, "":
		log.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Storage.Driver)
	}
}

// NewPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func NewPublisher(cfg *config.Config, log *slog.Logger) (eventstream.Publisher, error) {
	if len(cfg.EventStream.Brokers) == 0 {
		log.Debug("event publishing disabled")
		return nop.NewPublisher(), nil
	}

	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers: cfg.EventStream.Brokers,
		Topic:   cfg.EventStream.Topic,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	log.Info("publishing completion events",
		"brokers", cfg.EventStream.Brokers,
		"topic", cfg.EventStream.Topic,
	)
	return pub, nil
}
