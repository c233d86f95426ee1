// Package models defines the records mirrored from the remote deck service:
// notes, note types, media assets and update pages.
package models

import (
	"strings"

	"github.com/google/uuid"
)

// UpdateType classifies the last change the server reported for a note.
type UpdateType string

const (
	UpdateNone           UpdateType = ""
	UpdateNewNote        UpdateType = "new_note"
	UpdateContent        UpdateType = "updated_content"
	UpdateTags           UpdateType = "updated_tags"
	UpdateDeleted        UpdateType = "deleted"
	UpdateProtectedField UpdateType = "protected_fields"
)

// Valid reports whether u is one of the known update classifications.
func (u UpdateType) Valid() bool {
	switch u {
	case UpdateNone, UpdateNewNote, UpdateContent, UpdateTags, UpdateDeleted, UpdateProtectedField:
		return true
	}
	return false
}

// FieldSeparator joins field values in storage, in note type field order.
const FieldSeparator = "\x1f"

// Field is one named field value of a note.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Note is the server's version of a flashcard note.
//
// CollectionID is the id of the note in the local collection store; zero
// means the note has not been imported yet. Tags nil means the server did
// not say anything about tags, which keeps whatever is stored.
type Note struct {
	ID             uuid.UUID
	DeckID         uuid.UUID
	CollectionID   int64
	NoteTypeID     int64
	Fields         []Field
	Tags           []string
	GUID           string
	Mod            int64
	LastUpdateType UpdateType
}

// FieldValue returns the value of the named field.
func (n Note) FieldValue(name string) (string, bool) {
	for _, f := range n.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// JoinFields serializes values for storage.
func JoinFields(values []string) string {
	return strings.Join(values, FieldSeparator)
}

// SplitFields is the inverse of JoinFields.
func SplitFields(s string) []string {
	return strings.Split(s, FieldSeparator)
}

// JoinTags serializes tags as a space separated string, dropping empty ones.
func JoinTags(tags []string) string {
	kept := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, " ")
}

// SplitTags is the inverse of JoinTags. It never returns nil.
func SplitTags(s string) []string {
	tags := strings.Fields(s)
	if tags == nil {
		return []string{}
	}
	return tags
}
