package services

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/dmitrijs2005/decksync/internal/client/client"
	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/dmitrijs2005/decksync/internal/client/objstore"
	"github.com/google/uuid"
)

type fakeRemote struct {
	mu sync.Mutex

	pages    []*models.UpdatePage
	pageErr  error
	types    []models.NoteType
	media    []*models.MediaPage
	tokenErr error

	sinces      []*time.Time
	typeCalls   int
	targetCalls int
}

func (f *fakeRemote) FetchUpdates(_ context.Context, _ uuid.UUID, since *time.Time, _ int, _ ...client.FetchOption) iter.Seq2[*models.UpdatePage, error] {
	f.mu.Lock()
	f.sinces = append(f.sinces, since)
	f.mu.Unlock()
	return func(yield func(*models.UpdatePage, error) bool) {
		for _, p := range f.pages {
			if !yield(p, nil) {
				return
			}
		}
		if f.pageErr != nil {
			yield(nil, f.pageErr)
		}
	}
}

func (f *fakeRemote) FetchNoteTypes(_ context.Context, deckID uuid.UUID) ([]models.NoteType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typeCalls++
	out := make([]models.NoteType, len(f.types))
	for i, nt := range f.types {
		nt.DeckID = deckID
		out[i] = nt
	}
	return out, nil
}

func (f *fakeRemote) FetchMediaCatalog(_ context.Context, _ uuid.UUID, since *time.Time) iter.Seq2[*models.MediaPage, error] {
	f.mu.Lock()
	f.sinces = append(f.sinces, since)
	f.mu.Unlock()
	return func(yield func(*models.MediaPage, error) bool) {
		for _, p := range f.media {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func (f *fakeRemote) MediaUploadTarget(context.Context, uuid.UUID) (*objstore.PresignedPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targetCalls++
	return &objstore.PresignedPost{URL: "http://127.0.0.1:0/never"}, nil
}

func (f *fakeRemote) CheckToken() error { return f.tokenErr }
