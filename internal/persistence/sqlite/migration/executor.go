package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteExecutor implements Executor for SQLite databases.
type SQLiteExecutor struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteExecutor creates a new SQLite migration executor.
func NewSQLiteExecutor(db *sql.DB) *SQLiteExecutor {
	return &SQLiteExecutor{db: db, now: time.Now}
}

// InitializeVersionTable creates the schema_migrations table if it doesn't exist.
func (e *SQLiteExecutor) InitializeVersionTable(ctx context.Context) error {
	const createTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			execution_time_ms INTEGER NOT NULL DEFAULT 0
		)
	`
	if _, err := e.db.ExecContext(ctx, createTableSQL); err != nil {
		return NewDatabaseError("", "create schema_migrations table", err)
	}
	return nil
}

// ExecuteMigration runs every statement of migration and records it, all in one transaction.
func (e *SQLiteExecutor) ExecuteMigration(ctx context.Context, migration Migration) (err error) {
	statements := splitStatements(migration.SQL)
	if len(statements) == 0 {
		return NewMigrationError(migration.Version, migration.FilePath, "parse SQL",
			fmt.Errorf("%w: no SQL statements found", ErrInvalidMigrationFile))
	}

	started := e.now()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return NewDatabaseError(migration.Version, "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return NewDatabaseError(migration.Version, fmt.Sprintf("execute statement %d", i+1), err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`,
		migration.Version,
		e.now().UTC().Format(time.RFC3339),
		migration.Checksum,
		e.now().Sub(started).Milliseconds(),
	)
	if err != nil {
		return NewDatabaseError(migration.Version, "record migration", err)
	}

	if err = tx.Commit(); err != nil {
		return NewDatabaseError(migration.Version, "commit transaction", err)
	}
	return nil
}

// GetAppliedVersions returns all applied migration versions ordered by version.
func (e *SQLiteExecutor) GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT version, applied_at, execution_time_ms, checksum
		FROM schema_migrations
		ORDER BY version ASC
	`)
	if err != nil {
		return nil, NewDatabaseError("", "get applied versions", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			m            AppliedMigration
			appliedAtStr string
			executionMs  int64
		)
		if err := rows.Scan(&m.Version, &appliedAtStr, &executionMs, &m.Checksum); err != nil {
			return nil, NewDatabaseError("", "scan applied migration", err)
		}
		if m.AppliedAt, err = time.Parse(time.RFC3339, appliedAtStr); err != nil {
			return nil, NewDatabaseError(m.Version, "parse applied_at", err)
		}
		m.ExecutionTime = time.Duration(executionMs) * time.Millisecond
		applied = append(applied, m)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError("", "iterate applied migrations", err)
	}
	return applied, nil
}
