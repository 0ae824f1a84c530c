package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/roombook/internal/persistence"
	"github.com/example/roombook/internal/persistence/memory"
	"github.com/example/roombook/internal/persistence/sqlite"
)

// NewSQLiteStore opens a migrated store on a temporary file. The store is
// closed when the test ends.
func NewSQLiteStore(tb testing.TB) persistence.Store {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "roombook.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(path), logger)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	tb.Cleanup(func() { _ = store.Close() })
	return store
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore(tb testing.TB) persistence.Store {
	tb.Helper()
	store := memory.Open()
	tb.Cleanup(func() { _ = store.Close() })
	return store
}

// SeedResources inserts resources into store, failing the test on error.
func SeedResources(tb testing.TB, store persistence.ResourceRepository, resources ...persistence.Resource) {
	tb.Helper()
	for _, r := range resources {
		if err := store.CreateResource(context.Background(), r); err != nil {
			tb.Fatalf("failed to seed resource %s: %v", r.ID, err)
		}
	}
}
