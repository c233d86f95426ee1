package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/dmitrijs2005/decksync/internal/dbx"
	"github.com/google/uuid"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectNote = `SELECT n.note_id, n.deck_id, n.collection_note_id, n.note_type_id, n.fields,
	n.field_names, n.tags, n.guid, n.mod, n.last_update_type, nt.schema
FROM notes n
LEFT JOIN notetypes nt ON nt.note_type_id = n.note_type_id AND nt.deck_id = n.deck_id`

// OrderFields returns field values arranged in order. Names missing from fields
// become empty values. Fields whose names order does not list are appended
// after the ordered ones and reported as unknown; names is then the full
// list of names matching values, and nil otherwise.
func OrderFields(fields []models.Field, order []string) (values, names, unknown []string) {
	byName := make(map[string]string, len(fields))
	for _, f := range fields {
		byName[f.Name] = f.Value
	}
	values = make([]string, len(order), len(order)+len(fields))
	known := make(map[string]bool, len(order))
	for i, name := range order {
		values[i] = byName[name]
		known[name] = true
	}
	for _, f := range fields {
		if !known[f.Name] {
			unknown = append(unknown, f.Name)
			values = append(values, f.Value)
		}
	}
	if len(unknown) > 0 {
		names = append(append(make([]string, 0, len(values)), order...), unknown...)
	}
	return values, names, unknown
}

func (r *SQLiteRepository) Upsert(ctx context.Context, n *models.Note, fieldOrder []string) error {
	values, names, _ := OrderFields(n.Fields, fieldOrder)

	var fieldNames any
	if names != nil {
		fieldNames = models.JoinFields(names)
	}

	var tags any
	if n.Tags != nil {
		tags = models.JoinTags(n.Tags)
	}

	query := `INSERT INTO notes (note_id, deck_id, collection_note_id, note_type_id, fields, field_names, tags, guid, mod, last_update_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(note_id) DO UPDATE SET
			deck_id = excluded.deck_id,
			collection_note_id = COALESCE(excluded.collection_note_id, notes.collection_note_id),
			note_type_id = excluded.note_type_id,
			fields = excluded.fields,
			field_names = excluded.field_names,
			tags = COALESCE(excluded.tags, notes.tags),
			guid = COALESCE(excluded.guid, notes.guid),
			mod = COALESCE(excluded.mod, notes.mod),
			last_update_type = excluded.last_update_type`

	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.DeckID, nullInt(n.CollectionID), n.NoteTypeID, models.JoinFields(values),
		fieldNames, tags, nullString(n.GUID), nullInt(n.Mod), nullString(string(n.LastUpdateType)))
	if err != nil {
		return fmt.Errorf("failed to upsert note[%s]: %w", n.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Note, error) {
	n, err := scanNote(r.db.QueryRowContext(ctx, selectNote+` WHERE n.note_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note[%s]: %w", id, err)
	}
	return n, nil
}

func (r *SQLiteRepository) GetByCollectionID(ctx context.Context, collectionID int64) (*models.Note, error) {
	n, err := scanNote(r.db.QueryRowContext(ctx, selectNote+` WHERE n.collection_note_id = ?`, collectionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note by collection id[%d]: %w", collectionID, err)
	}
	return n, nil
}

func (r *SQLiteRepository) OwnerOfCollectionID(ctx context.Context, collectionID int64) (*uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx,
		`SELECT note_id FROM notes WHERE collection_note_id = ?`, collectionID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up collection id[%d]: %w", collectionID, err)
	}
	return &id, nil
}

func (r *SQLiteRepository) NoteIDsByCollectionIDs(ctx context.Context, collectionIDs []int64) (map[int64]*uuid.UUID, error) {
	result := make(map[int64]*uuid.UUID, len(collectionIDs))
	for _, cid := range collectionIDs {
		result[cid] = nil
	}

	for _, chunk := range dbx.Chunks(collectionIDs, dbx.MaxInParams) {
		query := `SELECT collection_note_id, note_id FROM notes WHERE collection_note_id IN (` + dbx.Placeholders(len(chunk)) + `)`
		rows, err := r.db.QueryContext(ctx, query, dbx.Args(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to map collection ids: %w", err)
		}
		for rows.Next() {
			var (
				cid int64
				id  uuid.UUID
			)
			if err := rows.Scan(&cid, &id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan id pair: %w", err)
			}
			result[cid] = &id
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to iterate id pairs: %w", err)
		}
	}
	return result, nil
}

func (r *SQLiteRepository) CollectionIDsByNoteIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*int64, error) {
	result := make(map[uuid.UUID]*int64, len(ids))
	for _, id := range ids {
		result[id] = nil
	}

	for _, chunk := range dbx.Chunks(ids, dbx.MaxInParams) {
		query := `SELECT note_id, collection_note_id FROM notes
			WHERE collection_note_id IS NOT NULL AND note_id IN (` + dbx.Placeholders(len(chunk)) + `)`
		rows, err := r.db.QueryContext(ctx, query, dbx.Args(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to map note ids: %w", err)
		}
		for rows.Next() {
			var (
				id  uuid.UUID
				cid int64
			)
			if err := rows.Scan(&id, &cid); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan id pair: %w", err)
			}
			result[id] = &cid
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to iterate id pairs: %w", err)
		}
	}
	return result, nil
}

func (r *SQLiteRepository) ListByDeck(ctx context.Context, deckID uuid.UUID) ([]models.Note, error) {
	rows, err := r.db.QueryContext(ctx, selectNote+` WHERE n.deck_id = ? ORDER BY n.collection_note_id, n.note_id`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	defer rows.Close()

	var result []models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		result = append(result, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) FieldContents(ctx context.Context, deckID uuid.UUID) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT fields FROM notes WHERE deck_id = ?`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to select note fields: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) SetMod(ctx context.Context, id uuid.UUID, mod int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE notes SET mod = ? WHERE note_id = ?`, mod, id)
	if err != nil {
		return fmt.Errorf("failed to set mod for note[%s]: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	var total int64
	for _, chunk := range dbx.Chunks(ids, dbx.MaxInParams) {
		res, err := r.db.ExecContext(ctx,
			`DELETE FROM notes WHERE note_id IN (`+dbx.Placeholders(len(chunk))+`)`, dbx.Args(chunk)...)
		if err != nil {
			return total, fmt.Errorf("failed to delete notes: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

func (r *SQLiteRepository) DeleteByDeck(ctx context.Context, deckID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE deck_id = ?`, deckID); err != nil {
		return fmt.Errorf("failed to delete notes of deck[%s]: %w", deckID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*models.Note, error) {
	var (
		n       models.Note
		cid     sql.NullInt64
		fields  string
		fnames  sql.NullString
		tags    sql.NullString
		guid    sql.NullString
		mod     sql.NullInt64
		updType sql.NullString
		schema  sql.NullString
	)
	if err := s.Scan(&n.ID, &n.DeckID, &cid, &n.NoteTypeID, &fields, &fnames, &tags, &guid, &mod, &updType, &schema); err != nil {
		return nil, err
	}

	n.CollectionID = cid.Int64
	n.GUID = guid.String
	n.Mod = mod.Int64
	n.LastUpdateType = models.UpdateType(updType.String)
	if tags.Valid {
		n.Tags = models.SplitTags(tags.String)
	}

	var names []string
	switch {
	case fnames.Valid:
		names = models.SplitFields(fnames.String)
	case schema.Valid:
		// a broken schema only costs the names, not the values
		names, _ = models.FieldNamesFromSchema([]byte(schema.String))
	}
	var values []string
	if fields != "" || len(names) > 0 {
		values = models.SplitFields(fields)
	}
	size := max(len(values), len(names))
	n.Fields = make([]models.Field, size)
	for i := range size {
		if i < len(names) {
			n.Fields[i].Name = names[i]
		}
		if i < len(values) {
			n.Fields[i].Value = values[i]
		}
	}
	return &n, nil
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
