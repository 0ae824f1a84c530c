package migration

import (
	"context"
	"time"
)

// Migration represents a versioned schema change.
type Migration struct {
	Version     string // Version identifier (e.g., "001", "002")
	Description string // Human-readable description of the migration
	SQL         string // SQL statements to execute
	FilePath    string // Path to the migration file inside its fs.FS
	Checksum    string // sha256 of SQL
}

// AppliedMigration represents a migration that has been successfully applied.
type AppliedMigration struct {
	Version       string
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

// Status provides information about the current migration state.
type Status struct {
	CurrentVersion    string
	AppliedMigrations []AppliedMigration
	PendingMigrations []Migration
}

// Executor handles the actual execution of migrations against the database.
type Executor interface {
	InitializeVersionTable(ctx context.Context) error
	// ExecuteMigration runs the migration and records it in one transaction.
	ExecuteMigration(ctx context.Context, migration Migration) error
	GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error)
}
