// Package collection is a small SQLite collection store: the user's local
// notes as the review application sees them. The sync engine writes
// accepted remote changes into it and reads back each note's modification
// counter.
//
// Notes are keyed by an integer id that the sync database links to its own
// notes. Field values are stored joined in the note type's field order.
package collection
