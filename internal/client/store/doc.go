// Package store is the record store of the sync database: the only owner of
// the on-disk file.
//
// # Overview
//
// A Store wraps an injected *sql.DB and a guard.Guard. Every mutating
// operation takes the guard's write lock and runs in one transaction, so a
// failing batch leaves nothing behind. Read operations take the read lock.
// Repositories from internal/client/repositories are built per call over
// either the transaction or the pool.
//
// # Conflicts
//
// UpsertNotes never fails on a conflict. A note whose collection id is
// already linked to a different note is reported in UpsertResult.Skipped and
// left out. A note referencing a note type the deck does not have fails the
// whole call with *IntegrityError before anything is written.
//
// # Attaching
//
// The collection store may ATTACH the sync database into its own connection
// for cross-database queries. Attach moves the store from Detached to
// Attached and holds the write lock until Detach, so no mutation and no
// read through the Store can run while the file is attached elsewhere.
package store
