// Package migrations owns the sync database schema.
//
// The schema evolves through an ordered list of steps. Each step runs in its
// own transaction and records its version twice: in goose's version table
// and in SQLite's PRAGMA user_version, which is the value consulted on open.
// Steps are written to be re-runnable: column additions check
// pragma_table_info first and index creation uses IF NOT EXISTS.
//
// The last step rebuilds every table from the canonical definitions in
// CanonicalSchema and copies the rows across. Whatever path an installation
// took through earlier versions, its tables and indexes end up with exactly
// the canonical DDL.
//
// # Errors
//
// A failing step yields *MigrationError carrying the last completed version;
// the database stays at that version and the next open resumes from there.
package migrations
