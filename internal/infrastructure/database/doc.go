// Package database provides SQLite connectivity for Showrunner.
//
// It opens the history database with WAL mode and a busy timeout, keeps a
// single writer connection, and applies embedded schema migrations named
// YYYYMMDD_HHMMSS_description.{up,down}.sql.
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
package database
