package cli

import (
	"bufio"
	"bytes"
	"context"
	"iter"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/decksync/internal/client/client"
	"github.com/dmitrijs2005/decksync/internal/client/collection"
	"github.com/dmitrijs2005/decksync/internal/client/config"
	"github.com/dmitrijs2005/decksync/internal/client/models"
	"github.com/dmitrijs2005/decksync/internal/client/objstore"
	"github.com/dmitrijs2005/decksync/internal/client/services"
	"github.com/dmitrijs2005/decksync/internal/client/status"
	"github.com/dmitrijs2005/decksync/internal/client/store"
	"github.com/dmitrijs2005/decksync/internal/logging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRemote struct {
	notes []models.Note
}

func (s *stubRemote) FetchUpdates(context.Context, uuid.UUID, *time.Time, int, ...client.FetchOption) iter.Seq2[*models.UpdatePage, error] {
	return func(yield func(*models.UpdatePage, error) bool) {
		if len(s.notes) == 0 {
			return
		}
		latest := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		yield(&models.UpdatePage{LatestUpdate: &latest, Notes: s.notes}, nil)
	}
}

func (s *stubRemote) FetchNoteTypes(_ context.Context, deckID uuid.UUID) ([]models.NoteType, error) {
	return []models.NoteType{{ID: 1, DeckID: deckID, Name: "Basic", Schema: models.NewSchema([]string{"Front", "Back"})}}, nil
}

func (s *stubRemote) FetchMediaCatalog(context.Context, uuid.UUID, *time.Time) iter.Seq2[*models.MediaPage, error] {
	return func(func(*models.MediaPage, error) bool) {}
}

func (s *stubRemote) MediaUploadTarget(context.Context, uuid.UUID) (*objstore.PresignedPost, error) {
	return &objstore.PresignedPost{URL: "http://127.0.0.1:0"}, nil
}

func (s *stubRemote) CheckToken() error { return nil }

func newTestApp(t *testing.T, remote client.Client, input string) (*App, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	records, err := store.Open(ctx, filepath.Join(dir, "sync.db"))
	require.NoError(t, err)
	coll, err := collection.Open(ctx, filepath.Join(dir, "collection.db"))
	require.NoError(t, err)

	var out bytes.Buffer
	bus := status.NewBus()
	a := &App{
		config:   &config.Config{},
		records:  records,
		coll:     coll,
		syncer:   services.NewSyncService(remote, records, coll, services.WithStatusBus(bus)),
		media:    services.NewMediaService(remote, records, objstore.PublicLocator{BaseURL: "http://127.0.0.1:0"}, services.MediaConfig{Dir: filepath.Join(dir, "media")}),
		bus:      bus,
		log:      logging.Nop(),
		reader:   bufio.NewReader(strings.NewReader(input)),
		out:      &out,
		progress: newProgress(&out, false),
		closers:  nil,
	}
	a.closers = append(a.closers, records, coll)
	t.Cleanup(func() { _ = a.Close() })
	return a, &out
}

func TestApp_InstallNotesUninstall(t *testing.T) {
	ctx := context.Background()
	deck := uuid.New()
	remote := &stubRemote{notes: []models.Note{{
		ID:             uuid.New(),
		NoteTypeID:     1,
		Fields:         []models.Field{{Name: "Front", Value: "capital of France"}, {Name: "Back", Value: "Paris"}},
		Tags:           []string{"geo"},
		LastUpdateType: models.UpdateNewNote,
	}}}

	a, out := newTestApp(t, remote, shortID(deck)+"\n")

	require.NoError(t, a.Install(ctx, []string{deck.String()}))
	assert.Contains(t, out.String(), "1 page(s), 1 applied, 0 skipped, 1 new in collection")

	out.Reset()
	require.NoError(t, a.Notes(ctx, []string{deck.String()}))
	assert.Contains(t, out.String(), "capital of France")
	assert.Contains(t, out.String(), "geo")
	assert.Contains(t, out.String(), "1 note(s)")
	assert.Equal(t, store.Detached, a.records.State())

	out.Reset()
	require.NoError(t, a.Status(ctx))
	assert.Contains(t, out.String(), "sync database: detached")

	out.Reset()
	require.NoError(t, a.Uninstall(ctx, []string{deck.String()}))
	assert.Contains(t, out.String(), "deck removed")

	notes, err := a.records.DeckNotes(ctx, deck)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestApp_UninstallCancelled(t *testing.T) {
	ctx := context.Background()
	deck := uuid.New()
	a, out := newTestApp(t, &stubRemote{}, "nope\n")

	require.NoError(t, a.Uninstall(ctx, []string{deck.String()}))
	assert.Contains(t, out.String(), "cancelled")
}

func TestApp_DeckArgument(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, &stubRemote{}, "")

	assert.ErrorContains(t, a.Sync(ctx, nil), "usage: sync <deck>")
	assert.ErrorContains(t, a.Media(ctx, []string{"not-a-uuid"}), "invalid deck id")
	assert.ErrorContains(t, a.Upload(ctx, []string{uuid.NewString()}), "usage: upload")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
