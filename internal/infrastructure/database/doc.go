// Package database provides the SQLite connection behind the node's
// non-volatile key/value store.
//
// This package manages:
//   - Database connection with WAL mode and synchronous=FULL
//   - Forward-only schema migrations embedded in the binary
//   - Lifecycle and health checks
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600; Wi-Fi credentials live here
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
