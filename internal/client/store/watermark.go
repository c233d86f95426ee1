package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WatermarkKind selects which feed a watermark tracks.
type WatermarkKind string

const (
	NotesWatermark WatermarkKind = "notes_since"
	MediaWatermark WatermarkKind = "media_since"
)

func deckKeyPrefix(deckID uuid.UUID) string {
	return fmt.Sprintf("deck/%s/", deckID)
}

func watermarkKey(deckID uuid.UUID, kind WatermarkKind) string {
	return deckKeyPrefix(deckID) + string(kind)
}

// Watermark returns the last persisted update timestamp, nil if never synced.
func (s *Store) Watermark(ctx context.Context, deckID uuid.UUID, kind WatermarkKind) (*time.Time, error) {
	var t *time.Time
	err := s.read(ctx, func(ctx context.Context, r repos) error {
		var err error
		t, err = r.metadata.GetTime(ctx, watermarkKey(deckID, kind))
		return err
	})
	return t, err
}

func (s *Store) SetWatermark(ctx context.Context, deckID uuid.UUID, kind WatermarkKind, t time.Time) error {
	return s.write(ctx, func(ctx context.Context, r repos) error {
		return r.metadata.SetTime(ctx, watermarkKey(deckID, kind), t)
	})
}
