package media

import (
	"context"

	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/google/uuid"
)

// Repository describes persistence operations for deck media catalog rows.
type Repository interface {
	// Upsert inserts or replaces each asset by (name, deck).
	Upsert(ctx context.Context, assets []models.MediaAsset) error

	// ListByDeck returns the deck's catalog ordered by name.
	ListByDeck(ctx context.Context, deckID uuid.UUID) ([]models.MediaAsset, error)

	// DownloadableNames lists names that are referenced, stored remotely and
	// allowed to download.
	DownloadableNames(ctx context.Context, deckID uuid.UUID) ([]string, error)

	// NameWithHash finds another asset in the deck with the given non-empty
	// hash. The lexically smallest matching name wins.
	NameWithHash(ctx context.Context, deckID uuid.UUID, hash, excludeName string) (string, bool, error)

	// DeleteByDeck removes the deck's catalog.
	DeleteByDeck(ctx context.Context, deckID uuid.UUID) error
}
