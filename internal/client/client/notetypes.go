package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/google/uuid"
)

type rawNoteType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FetchNoteTypes returns every note type of the deck. The whole JSON
// object of each type is kept as its schema.
func (c *HTTPClient) FetchNoteTypes(ctx context.Context, deckID uuid.UUID) ([]models.NoteType, error) {
	var raws []json.RawMessage
	if err := c.getJSON(ctx, c.endpoint("decks/"+deckID.String()+"/note-types/", nil), &raws); err != nil {
		return nil, err
	}

	out := make([]models.NoteType, 0, len(raws))
	for _, raw := range raws {
		var head rawNoteType
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, fmt.Errorf("%w: note type: %w", ErrMalformedResponse, err)
		}
		if _, err := models.FieldNamesFromSchema(raw); err != nil {
			return nil, fmt.Errorf("%w: note type %d: %w", ErrMalformedResponse, head.ID, err)
		}
		out = append(out, models.NoteType{ID: head.ID, DeckID: deckID, Name: head.Name, Schema: raw})
	}
	return out, nil
}
