package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/roombook/internal/persistence"
	"github.com/example/roombook/internal/persistence/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, DefaultConfig(filepath.Join(t.TempDir(), "roombook.db")), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return store
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) persistence.Store {
		return openTestStore(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}

func seedVersionedResource(t *testing.T, store *Store) {
	t.Helper()
	now := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	err := store.CreateResource(context.Background(), persistence.Resource{
		ID: "room-1", Name: "Aurora", Capacity: 4, Category: "meeting_room", CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateResource failed: %v", err)
	}
}

func reservationVersion(t *testing.T, store *Store) int64 {
	t.Helper()
	var version int64
	err := store.pool.DB().QueryRow("SELECT reservation_version FROM resources WHERE id = 'room-1'").Scan(&version)
	if err != nil {
		t.Fatalf("read version: %v", err)
	}
	return version
}

func TestWithResourceVersion(t *testing.T) {
	ctx := context.Background()

	t.Run("replays the unit when the version moved", func(t *testing.T) {
		store := openTestStore(t)
		seedVersionedResource(t, store)

		attempts := 0
		err := store.ReservationRepository.withResourceVersion(ctx, "room-1", func(tx *sql.Tx) error {
			attempts++
			if attempts == 1 {
				// Simulate a writer from another process committing first.
				_, err := tx.ExecContext(ctx, "UPDATE resources SET reservation_version = reservation_version + 1 WHERE id = 'room-1'")
				return err
			}
			return nil
		})
		if err != nil {
			t.Fatalf("expected replay to succeed, got %v", err)
		}
		if attempts != 2 {
			t.Fatalf("expected 2 attempts, got %d", attempts)
		}
		if v := reservationVersion(t, store); v != 1 {
			t.Fatalf("expected version 1 after one committed write, got %d", v)
		}
	})

	t.Run("reports unavailable after repeated losses", func(t *testing.T) {
		store := openTestStore(t)
		seedVersionedResource(t, store)

		attempts := 0
		err := store.ReservationRepository.withResourceVersion(ctx, "room-1", func(tx *sql.Tx) error {
			attempts++
			_, err := tx.ExecContext(ctx, "UPDATE resources SET reservation_version = reservation_version + 1 WHERE id = 'room-1'")
			return err
		})
		if !errors.Is(err, persistence.ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
		if attempts != maxVersionAttempts {
			t.Fatalf("expected %d attempts, got %d", maxVersionAttempts, attempts)
		}
		if v := reservationVersion(t, store); v != 0 {
			t.Fatalf("expected rolled back version 0, got %d", v)
		}
	})

	t.Run("does not replay a real conflict", func(t *testing.T) {
		store := openTestStore(t)
		seedVersionedResource(t, store)

		attempts := 0
		err := store.ReservationRepository.withResourceVersion(ctx, "room-1", func(tx *sql.Tx) error {
			attempts++
			return persistence.ErrConflict
		})
		if !errors.Is(err, persistence.ErrConflict) || attempts != 1 {
			t.Fatalf("expected single ErrConflict attempt, got %v after %d", err, attempts)
		}
	})

	t.Run("each committed write bumps the version", func(t *testing.T) {
		store := openTestStore(t)
		seedVersionedResource(t, store)
		start := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)

		_, err := store.InsertReservation(ctx, persistence.Reservation{
			ID: "res-1", ResourceID: "room-1", OwnerID: "alice", Start: start, End: start.Add(time.Hour), CreatedAt: start, UpdatedAt: start,
		})
		if err != nil {
			t.Fatalf("InsertReservation failed: %v", err)
		}
		if v := reservationVersion(t, store); v != 1 {
			t.Fatalf("expected version 1, got %d", v)
		}
	})
}

func TestConfigConnectionString(t *testing.T) {
	got := DefaultConfig("/tmp/roombook.db").connectionString()
	want := "file:/tmp/roombook.db?_pragma=busy_timeout%285000%29&_pragma=foreign_keys%281%29&_pragma=journal_mode%28WAL%29&_txlock=immediate"
	if got != want {
		t.Fatalf("connectionString() = %q, want %q", got, want)
	}
}
