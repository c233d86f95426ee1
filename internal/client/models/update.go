package models

import "time"

// UpdatePage is one page of note updates. LatestUpdate is nil when the
// server has nothing newer than the requested since.
type UpdatePage struct {
	LatestUpdate    *time.Time
	ProtectedFields map[int64][]string
	ProtectedTags   []string
	Notes           []Note
}

// MediaPage is one page of the deck media catalog.
type MediaPage struct {
	LatestUpdate *time.Time
	Assets       []MediaAsset
}

// LaterOf returns whichever of a and b is later; nil loses.
func LaterOf(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}

// Protection lists what the user protected from remote changes: field names
// per note type id and tags that must survive a tag update.
type Protection struct {
	Fields map[int64][]string
	Tags   []string
}

// Add merges a page's protection into p.
func (p *Protection) Add(page *UpdatePage) {
	if page == nil {
		return
	}
	for typeID, names := range page.ProtectedFields {
		if p.Fields == nil {
			p.Fields = make(map[int64][]string)
		}
		p.Fields[typeID] = appendMissing(p.Fields[typeID], names...)
	}
	p.Tags = appendMissing(p.Tags, page.ProtectedTags...)
}

// FieldProtected reports whether the named field of the note type is protected.
// The name "All" protects every field.
func (p Protection) FieldProtected(typeID int64, name string) bool {
	for _, n := range p.Fields[typeID] {
		if n == name || n == "All" {
			return true
		}
	}
	return false
}

func appendMissing(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
