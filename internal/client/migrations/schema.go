package migrations

// Table is the canonical definition of one table and its indexes.
type Table struct {
	Name    string
	DDL     string
	Indexes []string
}

// CanonicalSchema is the current definition of every sync database table.
// The rebuild step re-creates tables from exactly these statements.
var CanonicalSchema = []Table{
	{
		Name: "metadata",
		DDL: `CREATE TABLE metadata (
	key TEXT PRIMARY KEY NOT NULL,
	value BLOB NOT NULL
)`,
	},
	{
		Name: "notes",
		DDL: `CREATE TABLE notes (
	note_id TEXT PRIMARY KEY NOT NULL,
	deck_id TEXT NOT NULL,
	collection_note_id INTEGER,
	note_type_id INTEGER NOT NULL,
	fields TEXT NOT NULL DEFAULT '',
	field_names TEXT,
	tags TEXT,
	guid TEXT,
	mod INTEGER,
	last_update_type TEXT
)`,
		Indexes: []string{
			`CREATE UNIQUE INDEX notes_collection_note_id ON notes (collection_note_id)`,
			`CREATE INDEX notes_deck_id ON notes (deck_id)`,
		},
	},
	{
		Name: "notetypes",
		DDL: `CREATE TABLE notetypes (
	note_type_id INTEGER NOT NULL,
	deck_id TEXT NOT NULL,
	name TEXT NOT NULL,
	schema TEXT NOT NULL,
	PRIMARY KEY (note_type_id, deck_id)
)`,
	},
	{
		Name: "deck_media",
		DDL: `CREATE TABLE deck_media (
	name TEXT NOT NULL,
	deck_id TEXT NOT NULL,
	hash TEXT,
	modified TEXT NOT NULL,
	referenced_on_accepted_note INTEGER NOT NULL DEFAULT 0,
	exists_on_s3 INTEGER NOT NULL DEFAULT 0,
	download_enabled INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (name, deck_id)
)`,
		Indexes: []string{
			`CREATE INDEX deck_media_hash ON deck_media (deck_id, hash)`,
		},
	},
}
