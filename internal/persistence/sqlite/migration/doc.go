// Package migration applies versioned SQL schema changes to SQLite databases.
//
// Migration files live in an fs.FS (usually embedded) and follow the naming
// convention {version}_{description}.sql (e.g., "001_initial_schema.sql").
// Applied versions and their checksums are tracked in a schema_migrations
// table; editing an applied file is reported as ErrChecksumMismatch.
//
// Example usage:
//
//	manager := migration.NewManager(migrations, "migrations", migration.NewSQLiteExecutor(db), logger)
//	if err := manager.Run(ctx); err != nil {
//		return err
//	}
package migration
