package migrations

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/dmitrijs2005/decksync/internal/logging"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type schemaObject struct {
	Type string
	Name string
	SQL  string
}

func snapshot(t *testing.T, db *sql.DB) []schemaObject {
	t.Helper()
	rows, err := db.Query(`SELECT type, name, sql FROM sqlite_master
		WHERE sql IS NOT NULL AND name NOT LIKE 'goose%' AND name NOT LIKE 'sqlite_%'
		ORDER BY type, name`)
	require.NoError(t, err)
	defer rows.Close()

	var out []schemaObject
	for rows.Next() {
		var o schemaObject
		require.NoError(t, rows.Scan(&o.Type, &o.Name, &o.SQL))
		out = append(out, o)
	}
	require.NoError(t, rows.Err())
	return out
}

func canonicalSnapshot() []schemaObject {
	var out []schemaObject
	for _, tbl := range CanonicalSchema {
		out = append(out, schemaObject{Type: "table", Name: tbl.Name, SQL: tbl.DDL})
	}
	names := map[string]string{
		`CREATE UNIQUE INDEX notes_collection_note_id ON notes (collection_note_id)`: "notes_collection_note_id",
		`CREATE INDEX notes_deck_id ON notes (deck_id)`:                              "notes_deck_id",
		`CREATE INDEX deck_media_hash ON deck_media (deck_id, hash)`:                 "deck_media_hash",
	}
	for _, tbl := range CanonicalSchema {
		for _, idx := range tbl.Indexes {
			out = append(out, schemaObject{Type: "index", Name: names[idx], SQL: idx})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func newTestMigrator(t *testing.T, db *sql.DB) *Migrator {
	t.Helper()
	m, err := NewMigrator(db, logging.Nop())
	require.NoError(t, err)
	return m
}

func TestMigrate_FreshDatabase_ReachesLatest(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	m := newTestMigrator(t, db)

	v, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), v)

	require.NoError(t, m.Migrate(ctx, v))

	v, err = m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, Latest, v)

	if diff := cmp.Diff(canonicalSnapshot(), snapshot(t, db)); diff != "" {
		t.Fatalf("schema mismatch (-want +got):\n%s", diff)
	}
}

func TestMigrate_TwiceFromEveryHistoricalVersion_IsCanonical(t *testing.T) {
	ctx := context.Background()
	want := canonicalSnapshot()

	for from := int64(0); from < Latest; from++ {
		db := openDB(t)
		m := newTestMigrator(t, db)

		require.NoError(t, m.migrate(ctx, 0, from))
		v, err := m.CurrentVersion(ctx)
		require.NoError(t, err)
		require.Equal(t, from, v)

		require.NoError(t, m.Migrate(ctx, from))
		once := snapshot(t, db)

		require.NoError(t, m.Migrate(ctx, from))
		twice := snapshot(t, db)

		if diff := cmp.Diff(once, twice); diff != "" {
			t.Fatalf("from %d: second run changed schema (-once +twice):\n%s", from, diff)
		}
		if diff := cmp.Diff(want, once); diff != "" {
			t.Fatalf("from %d: schema not canonical (-want +got):\n%s", from, diff)
		}
	}
}

func TestMigrate_PreservesRowsAcrossRebuild(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	m := newTestMigrator(t, db)

	require.NoError(t, m.migrate(ctx, 0, 1))
	_, err := db.Exec(`INSERT INTO notes (note_id, deck_id, collection_note_id, note_type_id, fields, tags)
		VALUES ('n1', 'd1', 100, 1, 'A' || char(31) || 'B', 'x y')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO metadata (key, value) VALUES ('k', X'01')`)
	require.NoError(t, err)

	require.NoError(t, m.Migrate(ctx, 1))

	var (
		fields, tags string
		cid          int64
		guid         sql.NullString
	)
	require.NoError(t, db.QueryRow(`SELECT collection_note_id, fields, tags, guid FROM notes WHERE note_id = 'n1'`).
		Scan(&cid, &fields, &tags, &guid))
	assert.Equal(t, int64(100), cid)
	assert.Equal(t, "A\x1fB", fields)
	assert.Equal(t, "x y", tags)
	assert.False(t, guid.Valid)

	var value []byte
	require.NoError(t, db.QueryRow(`SELECT value FROM metadata WHERE key = 'k'`).Scan(&value))
	assert.Equal(t, []byte{1}, value)
}

func TestMigrate_DriftedLegacySchema_Converges(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	// a hand-made v2 layout with reordered and extra columns, no goose table
	_, err := db.Exec(`CREATE TABLE notes (
		deck_id TEXT NOT NULL,
		note_id TEXT PRIMARY KEY,
		legacy_flag INTEGER,
		note_type_id INTEGER NOT NULL,
		collection_note_id INTEGER,
		fields TEXT NOT NULL DEFAULT '',
		tags TEXT,
		mod INTEGER,
		guid TEXT
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO notes (deck_id, note_id, legacy_flag, note_type_id, collection_note_id, fields, mod, guid)
		VALUES ('d1', 'n1', 1, 7, 100, 'A', 5, 'g1'), ('d2', 'n2', 0, 7, 100, 'B', 6, 'g2')`)
	require.NoError(t, err)
	_, err = db.Exec(`PRAGMA user_version = 2`)
	require.NoError(t, err)

	m := newTestMigrator(t, db)
	from, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), from)

	require.NoError(t, m.Migrate(ctx, from))

	if diff := cmp.Diff(canonicalSnapshot(), snapshot(t, db)); diff != "" {
		t.Fatalf("schema mismatch (-want +got):\n%s", diff)
	}

	var linked int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM notes WHERE collection_note_id = 100`).Scan(&linked))
	assert.Equal(t, 1, linked, "duplicate collection ids are unlinked before the unique index")

	var mod int64
	var guid string
	require.NoError(t, db.QueryRow(`SELECT mod, guid FROM notes WHERE note_id = 'n2'`).Scan(&mod, &guid))
	assert.Equal(t, int64(6), mod)
	assert.Equal(t, "g2", guid)
}

func TestMigrate_FailingStep_LeavesLastCompletedVersion(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	boom := errors.New("boom")
	steps := []step{
		defaultSteps[0],
		defaultSteps[1],
		{3, "broken", func(ctx context.Context, tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `CREATE TABLE half_done (id INTEGER)`); err != nil {
				return err
			}
			return boom
		}},
	}
	m, err := newMigrator(db, logging.Nop(), steps)
	require.NoError(t, err)

	err = m.Migrate(ctx, 0)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMigration)

	var me *MigrationError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, int64(2), me.Version)
	assert.Equal(t, int64(3), me.Step)
	assert.ErrorContains(t, err, "boom")

	v, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'half_done'`).Scan(&n))
	assert.Zero(t, n, "failed step must roll back")
}

func TestMigrate_SchemaTooNew(t *testing.T) {
	db := openDB(t)
	m := newTestMigrator(t, db)

	err := m.Migrate(context.Background(), Latest+1)
	require.ErrorIs(t, err, ErrSchemaTooNew)
	require.ErrorIs(t, err, ErrMigration)
}

func TestRebuildTable_RecoversInterruptedRun(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	_, err := db.Exec(`CREATE TABLE metadata_old (key TEXT PRIMARY KEY, value BLOB NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO metadata_old (key, value) VALUES ('since', 'x')`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY NOT NULL, value BLOB NOT NULL)`)
	require.NoError(t, err)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, rebuildTable(ctx, tx, CanonicalSchema[0]))
	require.NoError(t, tx.Commit())

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM metadata WHERE key = 'since'`).Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'metadata_old'`).Scan(&n))
	assert.Zero(t, n)
}
