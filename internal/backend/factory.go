package backend

import (
	"context"
	"fmt"

	applog "fintrack/internal/log"
	"fintrack/internal/storage"
	"fintrack/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger  *applog.Logger
	storage *applog.Logger
}

// NewFactory creates a new backend factory. storageLogger is handed to the
// SQLite store.
func NewFactory(logger, storageLogger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Nop()
	}
	if storageLogger == nil {
		storageLogger = logger
	}
	return &DefaultFactory{logger: logger, storage: storageLogger}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	db, err := storage.NewSQLiteStore(config.SQLiteDBPath, f.storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Store:   db,
		SQLite:  db,
		Cleanup: db.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	s, err := memory.NewFromFiles(ctx, dataDir, config.Currency)
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory store: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized memory backend", "data_directory", dataDir)

	return &BackendResult{
		Store:   s,
		Cleanup: s.Close,
	}, nil
}
