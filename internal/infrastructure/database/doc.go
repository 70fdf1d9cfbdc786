// Package database provides SQLite connectivity for the tag registry.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations loaded from an fs.FS (embedded by the migrations package)
//   - Connection lifecycle and health checks
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_name.up.sql with an optional
// matching .down.sql. Migrations are additive: new columns must be nullable
// or carry a default.
package database
