package notetypes

import (
	"context"

	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/google/uuid"
)

// Repository describes persistence operations for deck note types.
// The same numeric id may exist independently in several decks.
type Repository interface {
	// Upsert replaces the note type for (id, deck) wholesale.
	Upsert(ctx context.Context, nt *models.NoteType) error

	// Get returns the note type or (nil, nil) when absent.
	Get(ctx context.Context, deckID uuid.UUID, id int64) (*models.NoteType, error)

	// Exists reports whether any deck has a note type with this id.
	Exists(ctx context.Context, id int64) (bool, error)

	// MissingForDeck returns those ids that have no note type in the deck.
	MissingForDeck(ctx context.Context, deckID uuid.UUID, ids []int64) ([]int64, error)

	// DeckIDsUsing lists the decks that define the note type.
	DeckIDsUsing(ctx context.Context, id int64) ([]uuid.UUID, error)

	// ListByDeck returns the deck's note types ordered by id.
	ListByDeck(ctx context.Context, deckID uuid.UUID) ([]models.NoteType, error)

	// DeleteByDeck removes every note type of the deck.
	DeleteByDeck(ctx context.Context, deckID uuid.UUID) error
}
