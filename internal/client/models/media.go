package models

import (
	"time"

	"github.com/google/uuid"
)

// MediaAsset is a deck media catalog entry. The bytes live in the local
// collection's media folder, not in the sync database. An empty Hash is
// stored as NULL.
type MediaAsset struct {
	Name            string
	DeckID          uuid.UUID
	Hash            string
	ModifiedAt      time.Time
	Referenced      bool
	ExistsOnS3      bool
	DownloadEnabled bool
}

// Downloadable reports whether the asset may be fetched from remote storage.
func (m MediaAsset) Downloadable() bool {
	return m.Referenced && m.ExistsOnS3 && m.DownloadEnabled
}
