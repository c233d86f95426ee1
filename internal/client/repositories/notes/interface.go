package notes

import (
	"context"

	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/google/uuid"
)

// Repository describes persistence operations for mirrored notes.
type Repository interface {
	// Upsert inserts a note or replaces the stored one with the same id.
	// Field values are joined in fieldOrder. Nil tags keep the stored tags,
	// and a zero Mod or CollectionID keeps the stored value.
	Upsert(ctx context.Context, n *models.Note, fieldOrder []string) error

	// GetByID returns the note or (nil, nil) when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Note, error)

	// GetByCollectionID returns the note linked to a collection note id or
	// (nil, nil) when absent.
	GetByCollectionID(ctx context.Context, collectionID int64) (*models.Note, error)

	// OwnerOfCollectionID returns the id of the note holding collectionID, or nil.
	OwnerOfCollectionID(ctx context.Context, collectionID int64) (*uuid.UUID, error)

	// NoteIDsByCollectionIDs maps every requested collection id to its note id;
	// ids without a note map to nil.
	NoteIDsByCollectionIDs(ctx context.Context, collectionIDs []int64) (map[int64]*uuid.UUID, error)

	// CollectionIDsByNoteIDs maps every requested note id to its collection id;
	// unknown or unlinked notes map to nil.
	CollectionIDsByNoteIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*int64, error)

	// ListByDeck returns all notes of the deck ordered by collection id.
	ListByDeck(ctx context.Context, deckID uuid.UUID) ([]models.Note, error)

	// FieldContents returns the stored field strings of the deck's notes.
	FieldContents(ctx context.Context, deckID uuid.UUID) ([]string, error)

	// SetMod stores the last applied modification counter.
	SetMod(ctx context.Context, id uuid.UUID, mod int64) error

	// DeleteByIDs removes notes and reports how many rows went away.
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)

	// DeleteByDeck removes all notes of the deck.
	DeleteByDeck(ctx context.Context, deckID uuid.UUID) error
}
