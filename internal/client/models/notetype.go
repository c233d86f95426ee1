package models

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// NoteType is the field and template schema a deck's notes conform to.
// Schema is kept as the document the server sent; only the field list is
// interpreted locally.
type NoteType struct {
	ID     int64
	DeckID uuid.UUID
	Name   string
	Schema json.RawMessage
}

type FieldDef struct {
	Name string `json:"name"`
	Ord  int    `json:"ord"`
}

type TemplateDef struct {
	Name string `json:"name"`
	Ord  int    `json:"ord"`
	QFmt string `json:"qfmt"`
	AFmt string `json:"afmt"`
}

type schemaDoc struct {
	Fields    []FieldDef    `json:"flds"`
	Templates []TemplateDef `json:"tmpls"`
}

// FieldNames returns the note type's field names ordered by ord.
func (nt NoteType) FieldNames() ([]string, error) {
	return FieldNamesFromSchema(nt.Schema)
}

// FieldNamesFromSchema extracts ordered field names from a schema document.
func FieldNamesFromSchema(schema json.RawMessage) ([]string, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("empty note type schema")
	}
	var doc schemaDoc
	if err := json.Unmarshal(schema, &doc); err != nil {
		return nil, fmt.Errorf("decode note type schema: %w", err)
	}
	fields := append([]FieldDef(nil), doc.Fields...)
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Ord < fields[j].Ord })

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names, nil
}

// NewSchema builds a minimal schema document with the given field names,
// in order, and one template per entry of templates.
func NewSchema(fieldNames []string, templates ...TemplateDef) json.RawMessage {
	doc := schemaDoc{Fields: make([]FieldDef, len(fieldNames)), Templates: templates}
	for i, n := range fieldNames {
		doc.Fields[i] = FieldDef{Name: n, Ord: i}
	}
	if doc.Templates == nil {
		doc.Templates = []TemplateDef{}
	}
	b, _ := json.Marshal(doc)
	return b
}
