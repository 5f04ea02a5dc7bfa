// Package database provides SQLite connectivity for the checkpoint bridge.
//
// It backs the optional SQLite subscriber store. The package manages:
//   - A single-writer connection with optional WAL mode
//   - Versioned schema migrations read from an fs.FS
//   - Directory creation and 0600 file permissions
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional .down.sql counterpart. Applied versions are recorded in the
// schema_migrations table.
package database
