package store

import (
	"context"
	"html"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/google/uuid"
)

var (
	srcAttrRe  = regexp.MustCompile(`(?i)<(?:img|audio|video|source|embed)\b[^>]*?\bsrc\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s>]+))`)
	soundTagRe = regexp.MustCompile(`\[sound:([^\]]+)\]`)
)

// ReferencedMediaNames extracts local media file names from field HTML.
// Remote URLs and data URIs are ignored.
func ReferencedMediaNames(content string) []string {
	var out []string
	add := func(name string) {
		name = strings.TrimSpace(html.UnescapeString(name))
		if name == "" || strings.Contains(name, "://") || strings.HasPrefix(strings.ToLower(name), "data:") {
			return
		}
		out = append(out, name)
	}
	for _, m := range srcAttrRe.FindAllStringSubmatch(content, -1) {
		for _, g := range m[1:] {
			if g != "" {
				add(g)
				break
			}
		}
	}
	for _, m := range soundTagRe.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	return out
}

// UpsertMediaCatalog replaces catalog rows of the deck by name.
func (s *Store) UpsertMediaCatalog(ctx context.Context, deckID uuid.UUID, assets []models.MediaAsset) error {
	if len(assets) == 0 {
		return nil
	}
	rows := make([]models.MediaAsset, len(assets))
	for i, a := range assets {
		a.DeckID = deckID
		rows[i] = a
	}
	return s.write(ctx, func(ctx context.Context, r repos) error {
		return r.media.Upsert(ctx, rows)
	})
}

// DownloadableMediaNames returns the names worth fetching for the deck.
func (s *Store) DownloadableMediaNames(ctx context.Context, deckID uuid.UUID) (map[string]struct{}, error) {
	var names []string
	err := s.read(ctx, func(ctx context.Context, r repos) error {
		var err error
		names, err = r.media.DownloadableNames(ctx, deckID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toSet(names), nil
}

// MediaNamesReferenced scans the deck's note fields for media references.
func (s *Store) MediaNamesReferenced(ctx context.Context, deckID uuid.UUID) (map[string]struct{}, error) {
	var contents []string
	err := s.read(ctx, func(ctx context.Context, r repos) error {
		var err error
		contents, err = r.notes.FieldContents(ctx, deckID)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]struct{})
	for _, c := range contents {
		for _, name := range ReferencedMediaNames(c) {
			out[name] = struct{}{}
		}
	}
	return out, nil
}

// MediaWithMatchingHash maps each given name to the asset of the deck that
// represents its content hash: the lexically smallest name carrying it.
// Names that are themselves the representative, or have no match, are left
// out, so an empty hash never appears on either side.
func (s *Store) MediaWithMatchingHash(ctx context.Context, deckID uuid.UUID, nameToHash map[string]string) (map[string]string, error) {
	out := make(map[string]string)
	err := s.read(ctx, func(ctx context.Context, r repos) error {
		for name, hash := range nameToHash {
			if hash == "" {
				continue
			}
			existing, ok, err := r.media.NameWithHash(ctx, deckID, hash, "")
			if err != nil {
				return err
			}
			if ok && existing != name {
				out[name] = existing
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) MediaAssets(ctx context.Context, deckID uuid.UUID) ([]models.MediaAsset, error) {
	var out []models.MediaAsset
	err := s.read(ctx, func(ctx context.Context, r repos) error {
		var err error
		out, err = r.media.ListByDeck(ctx, deckID)
		return err
	})
	return out, err
}

func toSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}
