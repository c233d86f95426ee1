package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/dmitrijs2005/decksync/internal/timex"
	"github.com/google/uuid"
)

type shape int

const (
	shapeNone shape = iota
	shapeString
	shapeStructured
)

// rawJSONish holds an attribute that may arrive absent, as a string, or as
// any other JSON value.
type rawJSONish struct {
	shape shape
	text  string
	raw   json.RawMessage
}

func (r *rawJSONish) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*r = rawJSONish{shape: shapeNone}
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = rawJSONish{shape: shapeString, text: s}
	default:
		*r = rawJSONish{shape: shapeStructured, raw: append(json.RawMessage(nil), b...)}
	}
	return nil
}

// decodeJSON decodes the structured value, or the JSON held in the string.
// It reports false when there was nothing to decode.
func (r rawJSONish) decodeJSON(v any) (bool, error) {
	switch r.shape {
	case shapeStructured:
		return true, json.Unmarshal(r.raw, v)
	case shapeString:
		if strings.TrimSpace(r.text) == "" {
			return false, nil
		}
		return true, json.Unmarshal([]byte(r.text), v)
	default:
		return false, nil
	}
}

func (r rawJSONish) int64() (int64, bool, error) {
	switch r.shape {
	case shapeStructured:
		var n json.Number
		if err := json.Unmarshal(r.raw, &n); err != nil {
			return 0, false, err
		}
		v, err := n.Int64()
		return v, err == nil, err
	case shapeString:
		if r.text == "" {
			return 0, false, nil
		}
		v, err := strconv.ParseInt(r.text, 10, 64)
		return v, err == nil, err
	default:
		return 0, false, nil
	}
}

type rawField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Order *int   `json:"order,omitempty"`
}

type rawNote struct {
	NoteID         string     `json:"note_id"`
	LegacyNoteID   string     `json:"ankihub_note_uuid"`
	ID             string     `json:"id"`
	CollectionID   rawJSONish `json:"anki_nid"`
	NoteTypeID     rawJSONish `json:"note_type_id"`
	ModelID        rawJSONish `json:"mid"`
	Fields         rawJSONish `json:"fields"`
	Tags           rawJSONish `json:"tags"`
	GUID           string     `json:"guid"`
	LastUpdateType string     `json:"last_update_type"`
}

func (r rawNote) noteID() (uuid.UUID, error) {
	for _, s := range []string{r.NoteID, r.LegacyNoteID, r.ID} {
		if s != "" {
			return uuid.Parse(s)
		}
	}
	return uuid.Nil, fmt.Errorf("note without id")
}

func (r rawNote) normalize(deckID uuid.UUID) (models.Note, error) {
	id, err := r.noteID()
	if err != nil {
		return models.Note{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	n := models.Note{ID: id, DeckID: deckID, GUID: r.GUID}

	if n.CollectionID, _, err = r.CollectionID.int64(); err != nil {
		return models.Note{}, fmt.Errorf("%w: note %s: anki_nid: %w", ErrMalformedResponse, id, err)
	}

	typeID, ok, err := r.NoteTypeID.int64()
	if err == nil && !ok {
		typeID, _, err = r.ModelID.int64()
	}
	if err != nil {
		return models.Note{}, fmt.Errorf("%w: note %s: note type: %w", ErrMalformedResponse, id, err)
	}
	n.NoteTypeID = typeID

	if n.Fields, err = normalizeFields(r.Fields); err != nil {
		return models.Note{}, fmt.Errorf("%w: note %s: fields: %w", ErrMalformedResponse, id, err)
	}
	if n.Tags, err = normalizeTags(r.Tags); err != nil {
		return models.Note{}, fmt.Errorf("%w: note %s: tags: %w", ErrMalformedResponse, id, err)
	}

	n.LastUpdateType = models.UpdateType(r.LastUpdateType)
	if !n.LastUpdateType.Valid() {
		return models.Note{}, fmt.Errorf("%w: note %s: unknown update type %q", ErrMalformedResponse, id, r.LastUpdateType)
	}
	return n, nil
}

// normalizeFields accepts a list of {name, value[, order]} objects or a
// name to value object.
func normalizeFields(r rawJSONish) ([]models.Field, error) {
	var list []rawField
	ok, err := r.decodeJSON(&list)
	if !ok {
		return nil, nil
	}
	if err != nil {
		var byName map[string]string
		if _, mapErr := r.decodeJSON(&byName); mapErr != nil {
			return nil, err
		}
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)
		out := make([]models.Field, len(names))
		for i, name := range names {
			out[i] = models.Field{Name: name, Value: byName[name]}
		}
		return out, nil
	}

	// fields without an order go after the ordered ones, in arrival order
	sort.SliceStable(list, func(i, j int) bool {
		oi, oj := list[i].Order, list[j].Order
		switch {
		case oi == nil:
			return false
		case oj == nil:
			return true
		}
		return *oi < *oj
	})
	out := make([]models.Field, len(list))
	for i, f := range list {
		out[i] = models.Field{Name: f.Name, Value: f.Value}
	}
	return out, nil
}

// normalizeTags keeps nil for an absent attribute so stored tags survive.
// A string that is not JSON is read as space separated tags.
func normalizeTags(r rawJSONish) ([]string, error) {
	if r.shape == shapeString && !strings.HasPrefix(strings.TrimSpace(r.text), "[") {
		return models.SplitTags(r.text), nil
	}
	var tags []string
	ok, err := r.decodeJSON(&tags)
	if !ok || err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

type rawUpdatePage struct {
	LatestUpdate    *string             `json:"latest_update"`
	ProtectedFields map[string][]string `json:"protected_fields"`
	ProtectedTags   []string            `json:"protected_tags"`
	Notes           []rawNote           `json:"notes"`
	Next            string              `json:"next"`
}

func parseLatest(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := timex.ParseTimestamp(*s)
	if err != nil {
		return nil, fmt.Errorf("%w: latest_update: %w", ErrMalformedResponse, err)
	}
	return &t, nil
}

func (p rawUpdatePage) normalize(deckID uuid.UUID) (*models.UpdatePage, error) {
	latest, err := parseLatest(p.LatestUpdate)
	if err != nil {
		return nil, err
	}
	page := &models.UpdatePage{
		LatestUpdate:    latest,
		ProtectedFields: make(map[int64][]string, len(p.ProtectedFields)),
		ProtectedTags:   p.ProtectedTags,
		Notes:           make([]models.Note, 0, len(p.Notes)),
	}
	for k, names := range p.ProtectedFields {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: protected_fields key %q", ErrMalformedResponse, k)
		}
		page.ProtectedFields[id] = names
	}
	for _, rn := range p.Notes {
		n, err := rn.normalize(deckID)
		if err != nil {
			return nil, err
		}
		page.Notes = append(page.Notes, n)
	}
	return page, nil
}
