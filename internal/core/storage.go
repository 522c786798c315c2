package core

import (
	"fmt"
	"os"

	"assaycore/internal/infra/persistence/memory"
	"assaycore/internal/infra/persistence/postgres"
	"assaycore/internal/infra/persistence/sqlite"
	"assaycore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	ASSAYCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	ASSAYCORE_SQLITE_PATH: path to sqlite file (default ./assaycore.db)
//	ASSAYCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore() (domain.PersistentStore, error) {
	driver := os.Getenv("ASSAYCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("ASSAYCORE_SQLITE_PATH"))
	case StoragePostgres:
		return postgres.NewStore(os.Getenv("ASSAYCORE_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
