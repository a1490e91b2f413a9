// Package database provides the SQLite connection layer for tuyatrace.
//
// It wraps database/sql with:
//
//   - Connection management (WAL mode, busy timeout, foreign keys)
//   - Schema migrations from embedded *.up.sql files
//   - Health checks
//
// SQLite is configured with a single pooled connection because the store
// has two concurrent writers (collector and watcher) and SQLite allows
// only one writer at a time; serialising in the pool avoids lock errors.
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        "./data/tuyatrace.db",
//	    WALMode:     true,
//	    BusyTimeout: 5,
//	})
//	if err != nil { ... }
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil { ... }
package database
