package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sitereports/internal/amqp"
	"sitereports/internal/reports"
	"sitereports/internal/reports/api"
	"sitereports/internal/reports/memory"
	"sitereports/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend. A failing AMQP broker is
// logged and leaves Publisher nil; every other failure is returned.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	fetcher, err := f.CreateFetcher(config)
	if err != nil {
		return nil, err
	}

	prefs, ping, err := f.createPreferences(config)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Fetcher:     fetcher,
		Preferences: prefs,
		Ping:        ping,
	}
	cleanups := []CleanupFunc{prefs.Close}

	if client := f.createPublisher(config); client != nil {
		result.Publisher = client
		cleanups = append(cleanups, client.Close)
	}

	result.Cleanup = func() error {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	f.logger.InfoContext(ctx, "Initialized reports backend",
		"source", config.Source,
		"preferences", config.Preferences,
		"amqp_enabled", result.Publisher != nil)

	return result, nil
}

// CreateFetcher builds only the report source, for tools that need no
// preferences or events.
func (f *DefaultFactory) CreateFetcher(config Config) (reports.Fetcher, error) {
	switch config.Source {
	case APISource:
		var opts []api.Option
		if config.ReportsAPIToken != "" {
			opts = append(opts, api.WithToken(config.ReportsAPIToken))
		}
		client, err := api.New(config.ReportsAPIURL, config.ReportsAPITimeout, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize reports API client: %w", err)
		}
		f.logger.Info("Using reports API", "base_url", config.ReportsAPIURL, "timeout", config.ReportsAPITimeout)
		return client, nil

	case MemorySource:
		dataDir := config.DataDirectory
		if dataDir == "" {
			dataDir = "data"
		}
		f.logger.Info("Using in-memory report fixtures", "data_directory", dataDir)
		return memory.NewFromDir(dataDir), nil

	default:
		return nil, fmt.Errorf("unsupported data source: %s", config.Source)
	}
}

func (f *DefaultFactory) createPreferences(config Config) (storage.Preferences, func(context.Context) error, error) {
	switch config.Preferences {
	case SQLitePreferences:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite preferences", "db_path", config.SQLiteDBPath)
		return repo, repo.Ping, nil

	case MemoryPreferences:
		f.logger.Info("Using in-memory preferences")
		return storage.NewMemoryPreferences(), func(context.Context) error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported preferences backend: %s", config.Preferences)
	}
}

func (f *DefaultFactory) createPublisher(config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without export events", "error", err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}
