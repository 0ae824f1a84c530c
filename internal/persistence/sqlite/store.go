// Package sqlite implements persistence.Store on modernc.org/sqlite.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/roombook/internal/persistence"
	"github.com/example/roombook/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store bundles the SQLite repositories behind one connection pool.
type Store struct {
	*UserRepository
	*ResourceRepository
	*ReservationRepository

	pool   *ConnectionPool
	logger *slog.Logger
}

var _ persistence.Store = (*Store)(nil)

// Open connects to the database described by config. Call Migrate before use.
func Open(ctx context.Context, config Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, err
	}
	return &Store{
		UserRepository:        NewUserRepository(pool),
		ResourceRepository:    NewResourceRepository(pool),
		ReservationRepository: NewReservationRepository(pool),
		pool:                  pool,
		logger:                logger,
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	manager := migration.NewManager(migrationFiles, "migrations", migration.NewSQLiteExecutor(s.pool.DB()), s.logger)
	if err := manager.Run(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Ping tests the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
