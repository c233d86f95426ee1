package collection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/dmitrijs2005/decksync/internal/client/store"
	"github.com/dmitrijs2005/decksync/internal/dbx"
	"github.com/dmitrijs2005/decksync/internal/logging"

	_ "modernc.org/sqlite"
)

var (
	ErrNoteNotFound    = errors.New("note not in collection")
	ErrUnknownNoteType = errors.New("note type not in collection")
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS notes (
		id INTEGER PRIMARY KEY,
		guid TEXT NOT NULL DEFAULT '',
		mid INTEGER NOT NULL,
		mod INTEGER NOT NULL,
		tags TEXT NOT NULL DEFAULT '',
		flds TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS notetypes (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		schema TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS notes_mid ON notes (mid)`,
}

type SQLite struct {
	db  *sql.DB
	log logging.Logger
	now func() time.Time
}

type Option func(*SQLite)

func WithLogger(l logging.Logger) Option {
	return func(s *SQLite) { s.log = l }
}

// WithClock replaces time.Now for modification counters.
func WithClock(now func() time.Time) Option {
	return func(s *SQLite) { s.now = now }
}

// Open opens or creates the collection file at path.
func Open(ctx context.Context, path string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	s, err := New(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps db and creates missing tables.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*SQLite, error) {
	s := &SQLite{db: db, log: logging.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create collection schema: %w", err)
		}
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Conn returns a dedicated connection, e.g. to attach the sync database.
func (s *SQLite) Conn(ctx context.Context) (*sql.Conn, error) {
	return s.db.Conn(ctx)
}

// EnsureNoteTypes registers or replaces note types.
func (s *SQLite) EnsureNoteTypes(ctx context.Context, types []models.NoteType) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, nt := range types {
			if _, err := nt.FieldNames(); err != nil {
				return fmt.Errorf("note type %d: %w", nt.ID, err)
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO notetypes (id, name, schema) VALUES (?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET name = excluded.name, schema = excluded.schema`,
				nt.ID, nt.Name, string(nt.Schema))
			if err != nil {
				return fmt.Errorf("failed to upsert collection note type[%d]: %w", nt.ID, err)
			}
		}
		return nil
	})
}

// FieldSchemaOf returns the collection's field order for a note type.
func (s *SQLite) FieldSchemaOf(ctx context.Context, typeID int64) ([]string, error) {
	return fieldSchemaOf(ctx, s.db, typeID)
}

func fieldSchemaOf(ctx context.Context, db dbx.DBTX, typeID int64) ([]string, error) {
	var raw string
	err := db.QueryRowContext(ctx, `SELECT schema FROM notetypes WHERE id = ?`, typeID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNoteType, typeID)
	}
	if err != nil {
		return nil, err
	}
	return models.FieldNamesFromSchema([]byte(raw))
}

func (s *SQLite) ModificationCounterOf(ctx context.Context, collectionID int64) (int64, error) {
	var mod int64
	err := s.db.QueryRowContext(ctx, `SELECT mod FROM notes WHERE id = ?`, collectionID).Scan(&mod)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %d", ErrNoteNotFound, collectionID)
	}
	return mod, err
}

func (s *SQLite) ApplyModificationCounter(ctx context.Context, collectionID, mod int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notes SET mod = ? WHERE id = ?`, mod, collectionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrNoteNotFound, collectionID)
	}
	return nil
}

// ApplyNotes writes accepted remote notes. Deletion markers remove the
// note. Notes without a collection id are created and returned with the
// id assigned; protected fields and tags keep their local values.
func (s *SQLite) ApplyNotes(ctx context.Context, batch []models.Note, p models.Protection) ([]models.Note, error) {
	out := make([]models.Note, 0, len(batch))
	mod := s.now().Unix()

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		out = out[:0]
		orders := make(map[int64][]string)

		for _, n := range batch {
			if n.LastUpdateType == models.UpdateDeleted {
				if n.CollectionID != 0 {
					if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, n.CollectionID); err != nil {
						return fmt.Errorf("failed to delete collection note[%d]: %w", n.CollectionID, err)
					}
				}
				out = append(out, n)
				continue
			}

			order, ok := orders[n.NoteTypeID]
			if !ok {
				var err error
				if order, err = fieldSchemaOf(ctx, tx, n.NoteTypeID); err != nil {
					return err
				}
				orders[n.NoteTypeID] = order
			}

			local, err := loadLocal(ctx, tx, n.CollectionID)
			if err != nil {
				return err
			}

			values := make([]string, len(order))
			for i, name := range order {
				v, _ := n.FieldValue(name)
				if local != nil && p.FieldProtected(n.NoteTypeID, name) && i < len(local.fields) {
					v = local.fields[i]
				}
				values[i] = v
			}

			tags := n.Tags
			switch {
			case local != nil && tags == nil:
				tags = local.tags
			case local != nil:
				tags = keepProtectedTags(tags, local.tags, p.Tags)
			}

			if local == nil {
				if n.CollectionID == 0 {
					if n.CollectionID, err = nextID(ctx, tx, mod); err != nil {
						return err
					}
				}
				_, err = tx.ExecContext(ctx, `INSERT INTO notes (id, guid, mid, mod, tags, flds) VALUES (?, ?, ?, ?, ?, ?)`,
					n.CollectionID, n.GUID, n.NoteTypeID, mod, models.JoinTags(tags), models.JoinFields(values))
			} else {
				_, err = tx.ExecContext(ctx, `UPDATE notes SET mid = ?, mod = ?, tags = ?, flds = ? WHERE id = ?`,
					n.NoteTypeID, mod, models.JoinTags(tags), models.JoinFields(values), n.CollectionID)
			}
			if err != nil {
				return fmt.Errorf("failed to write collection note[%d]: %w", n.CollectionID, err)
			}
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug(ctx, "collection updated", "notes", len(out))
	return out, nil
}

type localNote struct {
	fields []string
	tags   []string
}

func loadLocal(ctx context.Context, db dbx.DBTX, id int64) (*localNote, error) {
	if id == 0 {
		return nil, nil
	}
	var flds, tags string
	err := db.QueryRowContext(ctx, `SELECT flds, tags FROM notes WHERE id = ?`, id).Scan(&flds, &tags)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &localNote{fields: models.SplitFields(flds), tags: models.SplitTags(tags)}, nil
}

// nextID mimics the review application's millisecond ids, bumped past the
// current maximum.
func nextID(ctx context.Context, db dbx.DBTX, mod int64) (int64, error) {
	var maxID sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(id) FROM notes`).Scan(&maxID); err != nil {
		return 0, err
	}
	id := mod * 1000
	if maxID.Valid && maxID.Int64 >= id {
		id = maxID.Int64 + 1
	}
	return id, nil
}

func keepProtectedTags(remote, local, protected []string) []string {
	out := append([]string{}, remote...)
	for _, t := range local {
		if !containsFold(protected, t) || containsFold(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// LocallyModified lists collection notes edited after their last sync,
// comparing the collection's mod with the one recorded in the attached
// sync database.
func (s *SQLite) LocallyModified(ctx context.Context, att *store.Attachment) ([]int64, error) {
	rows, err := att.Conn().QueryContext(ctx, fmt.Sprintf(`
		SELECT c.id FROM notes c
		JOIN %s.notes s ON s.collection_note_id = c.id
		WHERE c.mod > COALESCE(s.mod, 0)
		ORDER BY c.id`, att.Alias()))
	if err != nil {
		return nil, fmt.Errorf("failed to compare modification counters: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// WithSyncAttached attaches st to a dedicated collection connection for the
// duration of fn.
func (s *SQLite) WithSyncAttached(ctx context.Context, st *store.Store, fn func(att *store.Attachment) error) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	att, err := st.Attach(ctx, conn, "sync")
	if err != nil {
		return err
	}
	defer func() {
		if derr := att.Detach(ctx); derr != nil {
			err = errors.Join(err, derr)
		}
	}()
	return fn(att)
}

// NoteFields returns a collection note's fields by name, for inspection.
func (s *SQLite) NoteFields(ctx context.Context, collectionID int64) (map[string]string, []string, error) {
	var (
		mid        int64
		flds, tags string
	)
	err := s.db.QueryRowContext(ctx, `SELECT mid, flds, tags FROM notes WHERE id = ?`, collectionID).Scan(&mid, &flds, &tags)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %d", ErrNoteNotFound, collectionID)
	}
	if err != nil {
		return nil, nil, err
	}
	order, err := s.FieldSchemaOf(ctx, mid)
	if err != nil {
		return nil, nil, err
	}
	values := models.SplitFields(flds)
	out := make(map[string]string, len(order))
	for i, name := range order {
		if i < len(values) {
			out[name] = values[i]
		}
	}
	return out, models.SplitTags(tags), nil
}
