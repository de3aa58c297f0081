// Package migration manages versioned database schema changes for the
// gateway's PostgreSQL, MySQL, and SQLite backends, built on top of
// golang-migrate.
//
// SQL migration files for each dialect are embedded via embed.FS and run
// through the golang-migrate engine, giving the gateway forward migration,
// rollback, step-by-step apply, jump-to-version, and forced version-set
// operations without requiring a separately shipped migrations directory.
//
// Migrator defines the full operation set (Up/Down/DownAll/Steps/Goto/
// Force/Version/Status/Info/Close); DefaultMigrator implements it on top of
// a golang-migrate instance and its own database/sql connection.
// NewMigratorFromConfig and NewMigratorFromDatabaseConfig build a migrator
// directly from the gateway's config.Config, and CLI wraps a Migrator with
// formatted terminal output for the gateway's migrate subcommand.
package migration
