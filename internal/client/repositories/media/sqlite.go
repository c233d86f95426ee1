package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *SQLiteRepository) Upsert(ctx context.Context, assets []models.MediaAsset) error {
	query := `INSERT OR REPLACE INTO deck_media
		(name, deck_id, hash, modified, referenced_on_accepted_note, exists_on_s3, download_enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	for _, a := range assets {
		var hash any
		if a.Hash != "" {
			hash = a.Hash
		}
		_, err := r.db.ExecContext(ctx, query,
			a.Name, a.DeckID, hash, a.ModifiedAt.UTC().Format(time.RFC3339Nano),
			a.Referenced, a.ExistsOnS3, a.DownloadEnabled)
		if err != nil {
			return fmt.Errorf("failed to upsert media[%s]: %w", a.Name, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) ListByDeck(ctx context.Context, deckID uuid.UUID) ([]models.MediaAsset, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, hash, modified, referenced_on_accepted_note, exists_on_s3, download_enabled
		FROM deck_media WHERE deck_id = ? ORDER BY name`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to select media of deck[%s]: %w", deckID, err)
	}
	defer rows.Close()

	var result []models.MediaAsset
	for rows.Next() {
		a := models.MediaAsset{DeckID: deckID}
		var (
			hash     sql.NullString
			modified string
		)
		if err := rows.Scan(&a.Name, &hash, &modified, &a.Referenced, &a.ExistsOnS3, &a.DownloadEnabled); err != nil {
			return nil, fmt.Errorf("failed to scan media row: %w", err)
		}
		a.Hash = hash.String
		if a.ModifiedAt, err = time.Parse(time.RFC3339Nano, modified); err != nil {
			return nil, fmt.Errorf("bad modified time for media[%s]: %w", a.Name, err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate media rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) DownloadableNames(ctx context.Context, deckID uuid.UUID) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name FROM deck_media
		WHERE deck_id = ? AND referenced_on_accepted_note = 1 AND exists_on_s3 = 1 AND download_enabled = 1
		ORDER BY name`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to select downloadable media: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (r *SQLiteRepository) NameWithHash(ctx context.Context, deckID uuid.UUID, hash, excludeName string) (string, bool, error) {
	if hash == "" {
		return "", false, nil
	}
	var name string
	err := r.db.QueryRowContext(ctx, `
		SELECT name FROM deck_media
		WHERE deck_id = ? AND hash IS NOT NULL AND hash = ? AND name <> ?
		ORDER BY name LIMIT 1`, deckID, hash, excludeName).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to match media hash: %w", err)
	}
	return name, true, nil
}

func (r *SQLiteRepository) DeleteByDeck(ctx context.Context, deckID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM deck_media WHERE deck_id = ?`, deckID); err != nil {
		return fmt.Errorf("failed to delete media of deck[%s]: %w", deckID, err)
	}
	return nil
}
