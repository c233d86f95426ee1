// Package notes persists the server's version of each mirrored note.
//
// # Storage
//
// Field values are stored as one string, joined with models.FieldSeparator in
// the note type's field order; field names are not stored and are recovered
// from the note type schema on read. Tags are stored space separated. A NULL
// tags column means the server never sent tags for the note.
//
// The collection note id is unique across all decks. The repository does not
// decide conflicts; callers check OwnerOfCollectionID before Upsert.
//
// # Concurrency
//
// SQLiteRepository works over a dbx.DBTX. Mutating callers pass a *sql.Tx and
// hold the sync database write lock.
//
// Key Types
//
//   - type Repository        interface used by the record store
//   - type SQLiteRepository  SQLite implementation over dbx.DBTX
package notes
