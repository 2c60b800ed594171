package storage

import (
	"fmt"

	"go.uber.org/zap"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open builds the backend selected by config.Driver. An empty driver means memory.
func Open(config DatabaseConfig, logger *zap.Logger) (Storage, error) {
	switch config.Driver {
	case "", DriverMemory:
		logger.Info("Using in-memory storage")
		return NewMemoryStorage(), nil
	case DriverPostgres:
		logger.Info("Using PostgreSQL storage")
		return NewPostgresStorage(config, logger)
	case DriverSQLite:
		logger.Info("Using SQLite storage")
		return NewSQLiteStore(config.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unknown database driver %q", config.Driver)
	}
}
