package store

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/google/uuid"
)

func (s *Store) UpsertNoteType(ctx context.Context, nt models.NoteType) error {
	return s.write(ctx, func(ctx context.Context, r repos) error {
		return r.noteTypes.Upsert(ctx, &nt)
	})
}

// UpsertNoteTypes writes several note types of a deck in one transaction.
func (s *Store) UpsertNoteTypes(ctx context.Context, deckID uuid.UUID, types []models.NoteType) error {
	if len(types) == 0 {
		return nil
	}
	return s.write(ctx, func(ctx context.Context, r repos) error {
		for _, nt := range types {
			nt.DeckID = deckID
			if err := r.noteTypes.Upsert(ctx, &nt); err != nil {
				return err
			}
		}
		return nil
	})
}

// NoteTypeSchema returns the stored schema, or nil when the deck lacks the type.
func (s *Store) NoteTypeSchema(ctx context.Context, deckID uuid.UUID, typeID int64) (json.RawMessage, error) {
	var schema json.RawMessage
	err := s.read(ctx, func(ctx context.Context, r repos) error {
		nt, err := r.noteTypes.Get(ctx, deckID, typeID)
		if err != nil || nt == nil {
			return err
		}
		schema = nt.Schema
		return nil
	})
	return schema, err
}

// IsKnownType reports whether any deck defines the note type.
func (s *Store) IsKnownType(ctx context.Context, typeID int64) (bool, error) {
	var ok bool
	err := s.read(ctx, func(ctx context.Context, r repos) error {
		var err error
		ok, err = r.noteTypes.Exists(ctx, typeID)
		return err
	})
	return ok, err
}

// DeckIDsUsingType returns the decks defining the note type, or nil if none do.
func (s *Store) DeckIDsUsingType(ctx context.Context, typeID int64) (map[uuid.UUID]struct{}, error) {
	var ids []uuid.UUID
	err := s.read(ctx, func(ctx context.Context, r repos) error {
		var err error
		ids, err = r.noteTypes.DeckIDsUsing(ctx, typeID)
		return err
	})
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	out := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *Store) NoteTypesForDeck(ctx context.Context, deckID uuid.UUID) ([]models.NoteType, error) {
	var out []models.NoteType
	err := s.read(ctx, func(ctx context.Context, r repos) error {
		var err error
		out, err = r.noteTypes.ListByDeck(ctx, deckID)
		return err
	})
	return out, err
}
