package core

import (
	"path/filepath"
	"testing"

	"panelbench/internal/infra/persistence/memory"
	"panelbench/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	t.Setenv("PANELBENCH_STORAGE_DRIVER", "memory")
	store, err := OpenPersistentStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenPersistentStoreSQLitePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	t.Setenv("PANELBENCH_STORAGE_DRIVER", "sqlite")
	t.Setenv("PANELBENCH_SQLITE_PATH", path)
	store, err := OpenPersistentStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	defer func() { _ = s.Close() }()
	if s.Path() != path {
		t.Fatalf("path = %q, want %q", s.Path(), path)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("PANELBENCH_STORAGE_DRIVER", "etcd")
	if _, err := OpenPersistentStore(); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
