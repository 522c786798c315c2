package core

import (
	"path/filepath"
	"testing"
)

func TestOpenPersistentStoreMemoryDriver(t *testing.T) {
	t.Setenv("ASSAYCORE_STORAGE_DRIVER", "memory")
	store, err := OpenPersistentStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if workflows := store.ListWorkflows(); len(workflows) != 0 {
		t.Fatalf("fresh store should be empty, got %d workflows", len(workflows))
	}
}

func TestOpenPersistentStoreSQLiteDriver(t *testing.T) {
	t.Setenv("ASSAYCORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("ASSAYCORE_SQLITE_PATH", filepath.Join(t.TempDir(), "state.db"))
	store, err := OpenPersistentStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if workflows := store.ListWorkflows(); len(workflows) != 0 {
		t.Fatalf("fresh store should be empty, got %d workflows", len(workflows))
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("ASSAYCORE_STORAGE_DRIVER", "etcd")
	if _, err := OpenPersistentStore(); err == nil {
		t.Fatal("unknown driver should be rejected")
	}
}
