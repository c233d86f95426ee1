package store

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/dmitrijs2005/decksync/internal/client/repositories/notes"
	"github.com/google/uuid"
)

// UpsertResult splits a batch into the notes written and the notes left out
// because their collection id belongs to another note.
type UpsertResult struct {
	Applied []models.Note
	Skipped []models.Note
}

// ModificationSource reads modification counters from the collection store.
type ModificationSource interface {
	ModificationCounterOf(ctx context.Context, collectionID int64) (int64, error)
}

// UpsertNotes applies a batch of updates for one deck in a single transaction.
func (s *Store) UpsertNotes(ctx context.Context, deckID uuid.UUID, batch []models.Note) (UpsertResult, error) {
	var res UpsertResult

	err := s.write(ctx, func(ctx context.Context, r repos) error {
		res = UpsertResult{}

		var typeIDs []int64
		for _, n := range batch {
			if n.LastUpdateType != models.UpdateDeleted {
				typeIDs = append(typeIDs, n.NoteTypeID)
			}
		}
		missing, err := r.noteTypes.MissingForDeck(ctx, deckID, typeIDs)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return &IntegrityError{DeckID: deckID, MissingTypeIDs: missing}
		}

		orders := make(map[int64][]string)
		for _, n := range batch {
			if n.LastUpdateType == models.UpdateDeleted {
				continue
			}
			if _, ok := orders[n.NoteTypeID]; ok {
				continue
			}
			nt, err := r.noteTypes.Get(ctx, deckID, n.NoteTypeID)
			if err != nil {
				return err
			}
			// a type stored without a schema names no fields
			var names []string
			if len(nt.Schema) > 0 {
				if names, err = nt.FieldNames(); err != nil {
					return fmt.Errorf("note type %d: %w", n.NoteTypeID, err)
				}
			}
			orders[n.NoteTypeID] = names
		}

		for _, n := range batch {
			n.DeckID = deckID

			if n.CollectionID != 0 {
				owner, err := r.notes.OwnerOfCollectionID(ctx, n.CollectionID)
				if err != nil {
					return err
				}
				if owner != nil && *owner != n.ID {
					s.log.Warn(ctx, "collection note already linked, skipping",
						"note", n.ID, "collection_id", n.CollectionID, "linked_to", *owner)
					res.Skipped = append(res.Skipped, n)
					continue
				}
			}

			if n.LastUpdateType == models.UpdateDeleted {
				if _, err := r.notes.DeleteByIDs(ctx, []uuid.UUID{n.ID}); err != nil {
					return err
				}
				res.Applied = append(res.Applied, n)
				continue
			}

			order := orders[n.NoteTypeID]
			if _, _, unknown := notes.OrderFields(n.Fields, order); len(unknown) > 0 {
				s.log.Warn(ctx, "note type does not list all fields, keeping note field names",
					"note", n.ID, "note_type", n.NoteTypeID, "fields", unknown)
			}
			if err := r.notes.Upsert(ctx, &n, order); err != nil {
				return err
			}
			res.Applied = append(res.Applied, n)
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}

	s.log.Debug(ctx, "notes upserted", "deck", deckID, "applied", len(res.Applied), "skipped", len(res.Skipped))
	return res, nil
}

// RemoveNotes deletes notes by id. Unknown ids are ignored.
func (s *Store) RemoveNotes(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return s.write(ctx, func(ctx context.Context, r repos) error {
		_, err := r.notes.DeleteByIDs(ctx, ids)
		return err
	})
}

// RemoveDeck deletes everything the store holds for a deck.
func (s *Store) RemoveDeck(ctx context.Context, deckID uuid.UUID) error {
	return s.write(ctx, func(ctx context.Context, r repos) error {
		if err := r.notes.DeleteByDeck(ctx, deckID); err != nil {
			return err
		}
		if err := r.noteTypes.DeleteByDeck(ctx, deckID); err != nil {
			return err
		}
		if err := r.media.DeleteByDeck(ctx, deckID); err != nil {
			return err
		}
		return r.metadata.DeletePrefix(ctx, deckKeyPrefix(deckID))
	})
}

// NoteByCollectionID returns the note linked to a collection note, or
// (nil, nil) when there is none.
func (s *Store) NoteByCollectionID(ctx context.Context, collectionID int64) (*models.Note, error) {
	var n *models.Note
	err := s.read(ctx, func(ctx context.Context, r repos) error {
		var err error
		n, err = r.notes.GetByCollectionID(ctx, collectionID)
		return err
	})
	return n, err
}

func (s *Store) NoteIDsByCollectionIDs(ctx context.Context, collectionIDs []int64) (map[int64]*uuid.UUID, error) {
	var out map[int64]*uuid.UUID
	err := s.read(ctx, func(ctx context.Context, r repos) error {
		var err error
		out, err = r.notes.NoteIDsByCollectionIDs(ctx, collectionIDs)
		return err
	})
	return out, err
}

func (s *Store) CollectionIDsByNoteIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*int64, error) {
	var out map[uuid.UUID]*int64
	err := s.read(ctx, func(ctx context.Context, r repos) error {
		var err error
		out, err = r.notes.CollectionIDsByNoteIDs(ctx, ids)
		return err
	})
	return out, err
}

// DeckNotes lists the deck's notes ordered by collection id.
func (s *Store) DeckNotes(ctx context.Context, deckID uuid.UUID) ([]models.Note, error) {
	var out []models.Note
	err := s.read(ctx, func(ctx context.Context, r repos) error {
		var err error
		out, err = r.notes.ListByDeck(ctx, deckID)
		return err
	})
	return out, err
}

// TransferModificationMarkers copies the collection's modification counter
// of each linked note into the store. Counters are read before the write
// lock is taken.
func (s *Store) TransferModificationMarkers(ctx context.Context, batch []models.Note, src ModificationSource) error {
	mods := make(map[uuid.UUID]int64, len(batch))
	for _, n := range batch {
		if n.CollectionID == 0 || n.LastUpdateType == models.UpdateDeleted {
			continue
		}
		mod, err := src.ModificationCounterOf(ctx, n.CollectionID)
		if err != nil {
			return fmt.Errorf("modification counter of %d: %w", n.CollectionID, err)
		}
		mods[n.ID] = mod
	}
	if len(mods) == 0 {
		return nil
	}

	return s.write(ctx, func(ctx context.Context, r repos) error {
		for id, mod := range mods {
			if err := r.notes.SetMod(ctx, id, mod); err != nil {
				return err
			}
		}
		return nil
	})
}
