package notetypes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/dmitrijs2005/decksync/internal/dbx"
	"github.com/google/uuid"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, nt *models.NoteType) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notetypes (note_type_id, deck_id, name, schema) VALUES (?, ?, ?, ?)
		ON CONFLICT(note_type_id, deck_id) DO UPDATE SET name = excluded.name, schema = excluded.schema
	`, nt.ID, nt.DeckID, nt.Name, string(nt.Schema))
	if err != nil {
		return fmt.Errorf("failed to upsert note type[%d]: %w", nt.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, deckID uuid.UUID, id int64) (*models.NoteType, error) {
	nt := &models.NoteType{ID: id, DeckID: deckID}
	var schema string
	err := r.db.QueryRowContext(ctx,
		`SELECT name, schema FROM notetypes WHERE note_type_id = ? AND deck_id = ?`, id, deckID).
		Scan(&nt.Name, &schema)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note type[%d]: %w", id, err)
	}
	nt.Schema = []byte(schema)
	return nt, nil
}

func (r *SQLiteRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notetypes WHERE note_type_id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check note type[%d]: %w", id, err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) MissingForDeck(ctx context.Context, deckID uuid.UUID, ids []int64) ([]int64, error) {
	ids = uniqueSorted(ids)
	present := make(map[int64]bool, len(ids))

	for _, chunk := range dbx.Chunks(ids, dbx.MaxInParams) {
		args := append([]any{deckID}, dbx.Args(chunk)...)
		rows, err := r.db.QueryContext(ctx,
			`SELECT note_type_id FROM notetypes WHERE deck_id = ? AND note_type_id IN (`+dbx.Placeholders(len(chunk))+`)`,
			args...)
		if err != nil {
			return nil, fmt.Errorf("failed to check note types of deck[%s]: %w", deckID, err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			present[id] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	var missing []int64
	for _, id := range ids {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r *SQLiteRepository) DeckIDsUsing(ctx context.Context, id int64) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT deck_id FROM notetypes WHERE note_type_id = ? ORDER BY deck_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to select decks of note type[%d]: %w", id, err)
	}
	defer rows.Close()

	var result []uuid.UUID
	for rows.Next() {
		var d uuid.UUID
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) ListByDeck(ctx context.Context, deckID uuid.UUID) ([]models.NoteType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT note_type_id, name, schema FROM notetypes WHERE deck_id = ? ORDER BY note_type_id`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to select note types of deck[%s]: %w", deckID, err)
	}
	defer rows.Close()

	var result []models.NoteType
	for rows.Next() {
		nt := models.NoteType{DeckID: deckID}
		var schema string
		if err := rows.Scan(&nt.ID, &nt.Name, &schema); err != nil {
			return nil, err
		}
		nt.Schema = []byte(schema)
		result = append(result, nt)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) DeleteByDeck(ctx context.Context, deckID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM notetypes WHERE deck_id = ?`, deckID); err != nil {
		return fmt.Errorf("failed to delete note types of deck[%s]: %w", deckID, err)
	}
	return nil
}

func uniqueSorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
