package core

import (
	"fmt"
	"os"

	"panelbench/internal/infra/persistence/memory"
	"panelbench/internal/infra/persistence/postgres"
	"panelbench/internal/infra/persistence/sqlite"
	"panelbench/pkg/study"
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
//	PANELBENCH_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	PANELBENCH_SQLITE_PATH: path to sqlite file (default ./panelbench.db)
//	PANELBENCH_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore() (study.PersistentStore, error) {
	driver := os.Getenv("PANELBENCH_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		path := os.Getenv("PANELBENCH_SQLITE_PATH")
		return sqlite.NewStore(path)
	case StoragePostgres:
		dsn := os.Getenv("PANELBENCH_POSTGRES_DSN")
		return postgres.NewStore(dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
