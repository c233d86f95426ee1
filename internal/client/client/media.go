package client

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"time"

	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/dmitrijs2005/decksync/internal/client/objstore"
	"github.com/dmitrijs2005/decksync/internal/timex"
	"github.com/google/uuid"
)

type rawMediaAsset struct {
	Name            string  `json:"name"`
	Hash            *string `json:"file_content_hash"`
	Modified        string  `json:"modified"`
	Referenced      bool    `json:"referenced_on_accepted_note"`
	ExistsOnS3      bool    `json:"exists_on_s3"`
	DownloadEnabled *bool   `json:"download_enabled"`
}

type rawMediaPage struct {
	LatestUpdate *string         `json:"latest_update"`
	Media        []rawMediaAsset `json:"media"`
	Next         string          `json:"next"`
}

func (p rawMediaPage) normalize(deckID uuid.UUID) (*models.MediaPage, error) {
	latest, err := parseLatest(p.LatestUpdate)
	if err != nil {
		return nil, err
	}
	page := &models.MediaPage{LatestUpdate: latest, Assets: make([]models.MediaAsset, 0, len(p.Media))}
	for _, m := range p.Media {
		if m.Name == "" {
			return nil, fmt.Errorf("%w: media entry without name", ErrMalformedResponse)
		}
		a := models.MediaAsset{
			Name:            m.Name,
			DeckID:          deckID,
			Referenced:      m.Referenced,
			ExistsOnS3:      m.ExistsOnS3,
			DownloadEnabled: m.DownloadEnabled == nil || *m.DownloadEnabled,
		}
		if m.Hash != nil {
			a.Hash = *m.Hash
		}
		if m.Modified != "" {
			if a.ModifiedAt, err = timex.ParseTimestamp(m.Modified); err != nil {
				return nil, fmt.Errorf("%w: media %s: %w", ErrMalformedResponse, m.Name, err)
			}
		}
		page.Assets = append(page.Assets, a)
	}
	return page, nil
}

// FetchMediaCatalog pages through the deck's media catalog entries changed
// after since.
func (c *HTTPClient) FetchMediaCatalog(ctx context.Context, deckID uuid.UUID, since *time.Time) iter.Seq2[*models.MediaPage, error] {
	q := url.Values{}
	if since != nil {
		q.Set("since", timex.FormatSince(*since))
	}
	first := c.endpoint("decks/"+deckID.String()+"/media/list/", q)

	return func(yield func(*models.MediaPage, error) bool) {
		for next := first; next != ""; {
			var raw rawMediaPage
			if err := c.getJSON(ctx, next, &raw); err != nil {
				yield(nil, err)
				return
			}
			page, err := raw.normalize(deckID)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page, nil) || raw.Next == "" {
				return
			}
			if next, err = resolve(next, raw.Next); err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

type rawUploadTarget struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// MediaUploadTarget asks the service for a presigned POST target that can
// be reused for every upload batch of the deck.
func (c *HTTPClient) MediaUploadTarget(ctx context.Context, deckID uuid.UUID) (*objstore.PresignedPost, error) {
	var raw rawUploadTarget
	if err := c.getJSON(ctx, c.endpoint("decks/"+deckID.String()+"/media/upload-target/", nil), &raw); err != nil {
		return nil, err
	}
	if raw.URL == "" {
		return nil, fmt.Errorf("%w: upload target without url", ErrMalformedResponse)
	}
	return &objstore.PresignedPost{URL: raw.URL, Fields: raw.Fields, HTTPClient: c.http}, nil
}
