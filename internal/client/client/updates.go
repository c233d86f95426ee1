package client

import (
	"context"
	"iter"
	"net/url"
	"strconv"
	"time"

	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/dmitrijs2005/decksync/internal/timex"
	"github.com/google/uuid"
)

type fetchOptions struct {
	progress func(seen int)
}

type FetchOption func(*fetchOptions)

// WithProgress is called after every page with the number of notes seen so far.
func WithProgress(fn func(seen int)) FetchOption {
	return func(o *fetchOptions) { o.progress = fn }
}

// FetchUpdates returns the deck's note updates newer than since, one page
// per iteration. Pages are requested only as the caller advances; breaking
// out of the loop stops fetching. The first error ends the sequence.
func (c *HTTPClient) FetchUpdates(ctx context.Context, deckID uuid.UUID, since *time.Time, pageSize int, opts ...FetchOption) iter.Seq2[*models.UpdatePage, error] {
	var o fetchOptions
	for _, fn := range opts {
		fn(&o)
	}

	q := url.Values{}
	if since != nil {
		q.Set("since", timex.FormatSince(*since))
	}
	if pageSize > 0 {
		q.Set("size", strconv.Itoa(pageSize))
	}
	first := c.endpoint("decks/"+deckID.String()+"/updates", q)

	return func(yield func(*models.UpdatePage, error) bool) {
		seen := 0
		for next := first; next != ""; {
			var raw rawUpdatePage
			if err := c.getJSON(ctx, next, &raw); err != nil {
				yield(nil, err)
				return
			}
			page, err := raw.normalize(deckID)
			if err != nil {
				yield(nil, err)
				return
			}

			seen += len(page.Notes)
			if o.progress != nil {
				o.progress(seen)
			}
			if !yield(page, nil) {
				return
			}

			if raw.Next == "" {
				return
			}
			if next, err = resolve(next, raw.Next); err != nil {
				yield(nil, err)
				return
			}
		}
	}
}
