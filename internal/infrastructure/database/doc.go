// Package database provides SQLite connectivity for the macro library and
// run history.
//
// It opens the database with WAL mode and a busy timeout, pins the pool to
// a single connection, and applies the embedded schema migrations.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive-only: new columns must be nullable or have a
// default, and each .up.sql has a matching .down.sql. All queries use
// parameterised statements and the file is created with mode 0600.
package database
