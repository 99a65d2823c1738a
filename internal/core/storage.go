package core

import (
	"context"
	"fmt"
	"log/slog"

	"sitecontent/internal/infra/persistence/jsonfile"
	"sitecontent/internal/infra/persistence/memory"
	"sitecontent/internal/infra/persistence/postgres"
	"sitecontent/internal/infra/persistence/sqlite"
	"sitecontent/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageJSONFile StorageDriver = "jsonfile" // single JSON document (default)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	View            = domain.View
	PersistentStore = domain.PersistentStore
	Record          = domain.Record
	Collection      = domain.Collection
)

// StorageConfig selects and configures the content store backend.
type StorageConfig struct {
	Driver      string
	JSONPath    string
	SQLitePath  string
	PostgresDSN string
}

// OpenPersistentStore constructs the backend named by cfg.Driver
// (jsonfile when empty).
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, logger *slog.Logger) (PersistentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(StorageJSONFile)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageJSONFile:
		return jsonfile.NewStore(ctx, cfg.JSONPath, logger)
	case StorageSQLite:
		return sqlite.NewStore(ctx, cfg.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
