package migration

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"time"
)

// Manager applies the migrations found in an fs.FS.
type Manager struct {
	fsys     fs.FS
	dir      string
	executor Executor
	logger   *slog.Logger
}

// NewManager creates a Manager reading migrations from dir in fsys.
func NewManager(fsys fs.FS, dir string, executor Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		fsys:     fsys,
		dir:      dir,
		executor: executor,
		logger:   logger.With(slog.String("component", "migration")),
	}
}

// Run executes all pending migrations in version order.
func (m *Manager) Run(ctx context.Context) error {
	started := time.Now()

	status, err := m.Status(ctx)
	if err != nil {
		return err
	}

	if len(status.PendingMigrations) == 0 {
		m.logger.InfoContext(ctx, "schema up to date", slog.String("version", status.CurrentVersion))
		return nil
	}

	for _, migration := range status.PendingMigrations {
		m.logger.InfoContext(ctx, "applying migration",
			slog.String("version", migration.Version),
			slog.String("description", migration.Description),
		)
		if err := m.executor.ExecuteMigration(ctx, migration); err != nil {
			m.logger.ErrorContext(ctx, "migration failed",
				slog.String("version", migration.Version),
				slog.Any("error", err),
			)
			return NewMigrationError(migration.Version, migration.FilePath, "execute migration",
				fmt.Errorf("%w: %v", ErrMigrationFailed, err))
		}
	}

	m.logger.InfoContext(ctx, "migrations applied",
		slog.Int("count", len(status.PendingMigrations)),
		slog.Duration("duration", time.Since(started)),
	)
	return nil
}

// Status compares the available migrations with the applied ones.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize version table: %w", err)
	}

	available, err := Scan(m.fsys, m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan migrations: %w", err)
	}

	applied, err := m.executor.GetAppliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied versions: %w", err)
	}

	byVersion := make(map[string]Migration, len(available))
	for _, migration := range available {
		byVersion[migration.Version] = migration
	}

	status := &Status{AppliedMigrations: applied}
	appliedSet := make(map[string]bool, len(applied))
	for _, a := range applied {
		migration, ok := byVersion[a.Version]
		if !ok {
			return nil, fmt.Errorf("%w: applied migration %s not found in available migrations", ErrVersionConflict, a.Version)
		}
		if a.Checksum != "" && a.Checksum != migration.Checksum {
			return nil, NewMigrationError(a.Version, migration.FilePath, "verify checksum", ErrChecksumMismatch)
		}
		appliedSet[a.Version] = true
		status.CurrentVersion = a.Version
	}

	for _, migration := range available {
		if !appliedSet[migration.Version] {
			status.PendingMigrations = append(status.PendingMigrations, migration)
		}
	}
	return status, nil
}
