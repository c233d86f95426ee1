package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type step struct {
	Version int64
	Name    string
	Up      func(ctx context.Context, tx *sql.Tx) error
}

var defaultSteps = []step{
	{1, "create notes and metadata", createNotes},
	{2, "add note guid and mod", addNoteGUIDAndMod},
	{3, "create notetypes", createNoteTypes},
	{4, "add last update type and collection id index", addLastUpdateType},
	{5, "create deck media", createDeckMedia},
	{6, "add media download flag", addDownloadEnabled},
	{7, "add note field names", addFieldNames},
	{8, "rebuild from canonical schema", rebuildAll},
}

func createNotes(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx,
		`CREATE TABLE IF NOT EXISTS notes (
			note_id TEXT PRIMARY KEY,
			deck_id TEXT NOT NULL,
			collection_note_id INTEGER,
			note_type_id INTEGER NOT NULL,
			fields TEXT NOT NULL DEFAULT '',
			tags TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)`,
	)
}

func addNoteGUIDAndMod(ctx context.Context, tx *sql.Tx) error {
	if err := addColumnIfMissing(ctx, tx, "notes", "guid", "TEXT"); err != nil {
		return err
	}
	return addColumnIfMissing(ctx, tx, "notes", "mod", "INTEGER")
}

func createNoteTypes(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx,
		`CREATE TABLE IF NOT EXISTS notetypes (
			note_type_id INTEGER NOT NULL,
			deck_id TEXT NOT NULL,
			name TEXT NOT NULL,
			schema TEXT NOT NULL,
			PRIMARY KEY (note_type_id, deck_id)
		)`,
	)
}

func addLastUpdateType(ctx context.Context, tx *sql.Tx) error {
	if err := addColumnIfMissing(ctx, tx, "notes", "last_update_type", "TEXT"); err != nil {
		return err
	}
	return execAll(ctx, tx,
		// older installs could hold one collection note in two decks; the
		// first imported copy keeps the link
		`UPDATE notes SET collection_note_id = NULL
		WHERE collection_note_id IS NOT NULL
		AND rowid NOT IN (
			SELECT MIN(rowid) FROM notes
			WHERE collection_note_id IS NOT NULL
			GROUP BY collection_note_id
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS notes_collection_note_id ON notes (collection_note_id)`,
		`CREATE INDEX IF NOT EXISTS notes_deck_id ON notes (deck_id)`,
	)
}

func createDeckMedia(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx,
		`CREATE TABLE IF NOT EXISTS deck_media (
			name TEXT NOT NULL,
			deck_id TEXT NOT NULL,
			hash TEXT,
			modified TEXT NOT NULL,
			referenced_on_accepted_note INTEGER NOT NULL DEFAULT 0,
			exists_on_s3 INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (name, deck_id)
		)`,
	)
}

func addDownloadEnabled(ctx context.Context, tx *sql.Tx) error {
	if err := addColumnIfMissing(ctx, tx, "deck_media", "download_enabled", "INTEGER NOT NULL DEFAULT 1"); err != nil {
		return err
	}
	return execAll(ctx, tx,
		`CREATE INDEX IF NOT EXISTS deck_media_hash ON deck_media (deck_id, hash)`,
	)
}

// addFieldNames adds the column holding field names for notes whose type
// schema does not name all of their fields.
func addFieldNames(ctx context.Context, tx *sql.Tx) error {
	return addColumnIfMissing(ctx, tx, "notes", "field_names", "TEXT")
}

// rebuildAll re-creates each table from CanonicalSchema: the live table is
// renamed aside, the canonical one created, shared columns copied and the old
// table dropped together with its indexes.
func rebuildAll(ctx context.Context, tx *sql.Tx) error {
	for _, t := range CanonicalSchema {
		if err := rebuildTable(ctx, tx, t); err != nil {
			return fmt.Errorf("rebuild %s: %w", t.Name, err)
		}
	}
	return nil
}

func rebuildTable(ctx context.Context, tx *sql.Tx, t Table) error {
	old := t.Name + "_old"

	oldExists, err := tableExists(ctx, tx, old)
	if err != nil {
		return err
	}
	liveExists, err := tableExists(ctx, tx, t.Name)
	if err != nil {
		return err
	}

	// recover from an interrupted previous run
	if oldExists {
		if liveExists {
			if _, err := tx.ExecContext(ctx, `DROP TABLE `+t.Name); err != nil {
				return err
			}
		}
		liveExists = true
		if _, err := tx.ExecContext(ctx, `ALTER TABLE `+old+` RENAME TO `+t.Name); err != nil {
			return err
		}
	}

	if !liveExists {
		return createCanonical(ctx, tx, t)
	}

	if _, err := tx.ExecContext(ctx, `ALTER TABLE `+t.Name+` RENAME TO `+old); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, t.DDL); err != nil {
		return err
	}

	oldCols, err := columns(ctx, tx, old)
	if err != nil {
		return err
	}
	newCols, err := columns(ctx, tx, t.Name)
	if err != nil {
		return err
	}

	shared := make([]string, 0, len(newCols))
	have := make(map[string]bool, len(oldCols))
	for _, c := range oldCols {
		have[c] = true
	}
	for _, c := range newCols {
		if have[c] {
			shared = append(shared, c)
		}
	}

	if len(shared) > 0 {
		list := strings.Join(shared, ", ")
		copySQL := fmt.Sprintf(`INSERT INTO %s (%s) SELECT %s FROM %s`, t.Name, list, list, old)
		if _, err := tx.ExecContext(ctx, copySQL); err != nil {
			return fmt.Errorf("copy rows: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE `+old); err != nil {
		return err
	}
	return execAll(ctx, tx, t.Indexes...)
}

func createCanonical(ctx context.Context, tx *sql.Tx, t Table) error {
	if _, err := tx.ExecContext(ctx, t.DDL); err != nil {
		return err
	}
	return execAll(ctx, tx, t.Indexes...)
}

func execAll(ctx context.Context, tx *sql.Tx, stmts ...string) error {
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func tableExists(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	return n > 0, err
}

func columns(ctx context.Context, tx *sql.Tx, table string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func addColumnIfMissing(ctx context.Context, tx *sql.Tx, table, column, decl string) error {
	cols, err := columns(ctx, tx, table)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if c == column {
			return nil
		}
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl))
	return err
}
